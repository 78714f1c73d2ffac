// Package eventbus implements the Event Bus (C1): a per-batch, ordered,
// at-most-once publish/subscribe channel with drop-slow-subscriber
// backpressure.
//
// Transport is an embedded NATS server reached over an in-process
// connection (no socket, no external process) so ordering and fan-out
// are provided by nats.go's connection dispatcher rather than
// hand-rolled broadcast code, preferring a real pub/sub component over
// ad-hoc channel fan-out.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/codeready-toolchain/ingestor/internal/config"
	"github.com/codeready-toolchain/ingestor/internal/errs"
)

func subject(batchID string) string {
	return "batch." + batchID + ".events"
}

// Bus owns the embedded NATS server and the sequence counters for every
// batch it has published to.
type Bus struct {
	cfg *config.EventBusConfig
	log *slog.Logger

	srv *server.Server
	nc  *nats.Conn

	mu    sync.Mutex
	seqs  map[string]uint64

	prompts *promptRegistry
}

// New starts the embedded NATS server and an in-process publisher
// connection. DontListen keeps it off the network entirely; every client
// in this process attaches via nats.InProcessServer.
func New(cfg *config.EventBusConfig, log *slog.Logger) (*Bus, error) {
	opts := &server.Options{
		DontListen: true,
		NoLog:      true,
		NoSigs:     true,
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("eventbus: start embedded nats: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("eventbus: embedded nats did not become ready")
	}

	nc, err := nats.Connect("", nats.InProcessServer(srv))
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("eventbus: connect publisher: %w", err)
	}

	return &Bus{
		cfg:     cfg,
		log:     log,
		srv:     srv,
		nc:      nc,
		seqs:    make(map[string]uint64),
		prompts: newPromptRegistry(),
	}, nil
}

// Close drains the publisher connection and shuts the embedded server down.
func (b *Bus) Close() {
	b.nc.Close()
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
}

// nextSeq assigns the next monotone sequence number for batchID under a
// single lock ("sequence numbers are monotone per batch").
func (b *Bus) nextSeq(batchID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seqs[batchID]++
	return b.seqs[batchID]
}

// Publish assigns the event a sequence number and sends it on the batch's
// subject. Publish never blocks on subscriber behavior: NATS delivery to
// subscribers is asynchronous from the publisher's perspective.
func (b *Bus) Publish(batchID string, kind Kind, payload any) error {
	ev := Event{
		Type:      kind,
		BatchID:   batchID,
		Seq:       b.nextSeq(batchID),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	if err := b.nc.Publish(subject(batchID), data); err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

// Subscription is a bounded, in-order stream of Events for one batch. A
// subscriber that falls behind is dropped on its own, never slowing other
// subscribers or the publisher.
type Subscription struct {
	C <-chan Event

	nc     *nats.Conn
	sub    *nats.Subscription
	ch     chan Event
	log    *slog.Logger
	batch  string

	closeOnce sync.Once
	dropped   bool
	dropMu    sync.Mutex
}

// Dropped reports whether this subscription was severed for falling behind.
func (s *Subscription) Dropped() bool {
	s.dropMu.Lock()
	defer s.dropMu.Unlock()
	return s.dropped
}

// Close unsubscribes and releases the dedicated connection. Idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.sub != nil {
			_ = s.sub.Unsubscribe()
		}
		s.nc.Close()
		close(s.ch)
	})
}

func (s *Subscription) markDropped() {
	s.dropMu.Lock()
	s.dropped = true
	s.dropMu.Unlock()
}

// Subscribe opens a fresh connection to the embedded server dedicated to
// this subscriber, so one slow reader's backlog can never delay delivery
// to any other subscriber (each has its own NATS dispatcher goroutine).
func (b *Bus) Subscribe(batchID string) (*Subscription, error) {
	nc, err := nats.Connect("", nats.InProcessServer(b.srv))
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscribe connect: %w", err)
	}

	buf := b.cfg.SubscriberBuffer
	if buf <= 0 {
		buf = 1024
	}
	s := &Subscription{
		nc:    nc,
		ch:    make(chan Event, buf),
		log:   b.log,
		batch: batchID,
	}
	s.C = s.ch

	sub, err := nc.Subscribe(subject(batchID), func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.log.Warn("eventbus: dropping malformed event", "batch_id", batchID, "err", err)
			return
		}
		select {
		case s.ch <- ev:
		default:
			// Buffer full: this subscriber alone is severed, per the
			// drop-slow-subscriber policy. The publisher and every other
			// subscriber are unaffected.
			s.markDropped()
			b.log.Warn("eventbus: subscriber buffer full, dropping subscriber", "batch_id", batchID)
			go s.Close()
		}
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("eventbus: subscribe: %w", err)
	}
	s.sub = sub
	return s, nil
}

// RegisterPrompt records a pending interactive prompt for batchID and
// returns a channel that receives the operator's response exactly once.
func (b *Bus) RegisterPrompt(ctx context.Context, batchID, promptID string) <-chan string {
	return b.prompts.register(batchID, promptID)
}

// CancelPrompt removes a pending prompt without resolving it, e.g. when the
// owning session is cancelled while awaiting input.
func (b *Bus) CancelPrompt(promptID string) {
	b.prompts.cancel(promptID)
}

// DeliverUserResponse resolves a pending prompt, or returns
// errs.ErrUnknownPrompt if promptID has no waiter ("unmatched
// prompt_id surfaces an UnknownPrompt error").
func (b *Bus) DeliverUserResponse(promptID, response string) error {
	batchID, ok := b.prompts.deliver(promptID, response)
	if !ok {
		return errs.New(errs.CodeUnknownPrompt, "C1", errs.ErrUnknownPrompt)
	}
	_ = b.Publish(batchID, KindWorkflowProgress, WorkflowProgressPayload{
		Message: "user response received",
		Detail:  promptID,
	})
	return nil
}
