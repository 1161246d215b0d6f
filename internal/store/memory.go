package store

import (
	"sync"

	"github.com/mhealthlab/demobot/internal/models"
)

// InMemoryStore is the default archive backend when no database is configured.
type InMemoryStore struct {
	mu        sync.Mutex
	responses []models.Response
	receipts  []models.Receipt
}

// NewInMemoryStore creates an empty in-memory archive.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// AddResponse records an inbound message.
func (s *InMemoryStore) AddResponse(r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

// GetResponses returns all recorded inbound messages.
func (s *InMemoryStore) GetResponses() ([]models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Response, len(s.responses))
	copy(out, s.responses)
	return out, nil
}

// AddReceipt records a delivery receipt.
func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

// GetReceipts returns all recorded delivery receipts.
func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

// Close is a no-op for the in-memory archive.
func (s *InMemoryStore) Close() error {
	return nil
}
