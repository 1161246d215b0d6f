package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mhealthlab/demobot/internal/models"
)

// IdentityQueueSize bounds the number of pending messages per identity.
// When a sender's queue is full, further messages are dropped with a warning
// rather than stalling other identities.
const IdentityQueueSize = 32

// MessageProcessor handles one inbound message to completion. The flow
// dispatcher satisfies this.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, from, body string) error
}

// Archive records inbound traffic for audit. The store package satisfies this.
type Archive interface {
	AddResponse(models.Response) error
}

// Listener consumes the transport's response channel and hands each message
// to the processor.
//
// Messages from the same identity are processed strictly in arrival order on
// a dedicated per-identity queue; distinct identities proceed concurrently.
// This is the per-identity serialization that keeps duplicate webhook
// deliveries from interleaving history appends.
type Listener struct {
	svc     Service
	proc    MessageProcessor
	archive Archive

	mu     sync.Mutex
	queues map[string]chan models.Response
	wg     sync.WaitGroup
}

// NewListener creates a listener over the transport, processor, and optional
// archive (nil disables archiving).
func NewListener(svc Service, proc MessageProcessor, archive Archive) *Listener {
	return &Listener{
		svc:     svc,
		proc:    proc,
		archive: archive,
		queues:  make(map[string]chan models.Response),
	}
}

// Start begins consuming inbound messages until the context is cancelled or
// the transport's response channel closes.
func (l *Listener) Start(ctx context.Context) {
	slog.Info("Listener starting message processing")
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case response, ok := <-l.svc.Responses():
				if !ok {
					slog.Debug("Listener responses channel closed")
					return
				}
				l.dispatch(ctx, response)
			case <-ctx.Done():
				slog.Debug("Listener stopping due to context cancellation")
				return
			}
		}
	}()
}

// Wait blocks until the intake loop and all identity workers have exited.
func (l *Listener) Wait() {
	l.wg.Wait()
}

// dispatch canonicalizes the sender, archives the message, and enqueues it on
// the sender's serial queue.
func (l *Listener) dispatch(ctx context.Context, response models.Response) {
	canonical, err := l.svc.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("Listener dropping message from invalid sender", "error", err, "from", response.From)
		return
	}
	response.From = canonical

	if l.archive != nil {
		if err := l.archive.AddResponse(response); err != nil {
			slog.Warn("Listener failed to archive inbound message", "error", err, "from", canonical)
		}
	}

	queue := l.queueFor(ctx, canonical)
	select {
	case queue <- response:
	default:
		slog.Warn("Listener identity queue full, dropping message", "from", canonical, "queue_size", IdentityQueueSize)
	}
}

// queueFor returns the identity's serial queue, starting its worker on first
// use.
func (l *Listener) queueFor(ctx context.Context, identity string) chan models.Response {
	l.mu.Lock()
	defer l.mu.Unlock()

	if queue, ok := l.queues[identity]; ok {
		return queue
	}
	queue := make(chan models.Response, IdentityQueueSize)
	l.queues[identity] = queue
	l.wg.Add(1)
	go l.runWorker(ctx, identity, queue)
	slog.Debug("Listener started identity worker", "identity", identity)
	return queue
}

// runWorker processes one identity's messages in strict arrival order.
func (l *Listener) runWorker(ctx context.Context, identity string, queue chan models.Response) {
	defer l.wg.Done()
	for {
		select {
		case response := <-queue:
			l.process(ctx, response)
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) process(ctx context.Context, response models.Response) {
	l.setTyping(ctx, response.From, true)
	defer l.setTyping(ctx, response.From, false)

	if err := l.proc.ProcessMessage(ctx, response.From, response.Body); err != nil {
		// The dispatcher has already sent the user-facing recovery reply.
		slog.Error("Listener message processing failed", "error", err, "from", response.From)
		return
	}
	slog.Debug("Listener message processed", "from", response.From)
}

func (l *Listener) setTyping(ctx context.Context, to string, typing bool) {
	notifier, ok := l.svc.(TypingNotifier)
	if !ok {
		return
	}
	if err := notifier.SendTyping(ctx, to, typing); err != nil {
		slog.Debug("Listener typing indicator failed", "error", err, "to", to, "typing", typing)
	}
}
