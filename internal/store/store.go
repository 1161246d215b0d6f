// Package store provides transcript archive backends for DemoBot.
//
// The archive records inbound messages and outbound delivery receipts for
// audit. It deliberately does not hold session state: conversational state
// lives in process memory and does not survive restarts.
package store

import "github.com/mhealthlab/demobot/internal/models"

// Store is the transcript archive abstraction.
type Store interface {
	AddResponse(r models.Response) error
	GetResponses() ([]models.Response, error)
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN configures a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}
