// Package bus serves a Dispatcher over NATS request/reply.
//
// Single events arrive on "<prefix>.events.<eventType>" and batches on
// "<prefix>.batch.<operation>". Every request gets a JSON reply.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/imkarma/taskplan/internal/dispatch"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "taskplan"

// QueueGroup load-balances requests across subscribers.
const QueueGroup = "taskplan-dispatch"

// Reply codes carried in error replies.
const (
	CodeBadRequest = "bad_request"
	CodeNoHandler  = "no_handler"
	CodeFault      = "handler_fault"
)

// Reply is the body sent back for every request.
type Reply struct {
	Status    string            `json:"status,omitempty"`
	Result    *dispatch.Result  `json:"result,omitempty"`
	Results   []dispatch.Result `json:"results,omitempty"`
	Processed int               `json:"processed,omitempty"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Subscriber routes NATS requests to a Dispatcher.
type Subscriber struct {
	nc         *nats.Conn
	dispatcher *dispatch.Dispatcher
	prefix     string
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(s *Subscriber) { s.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Subscriber) { s.logger = l }
}

// WithClock overrides the reply timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Subscriber) { s.now = now }
}

// NewSubscriber creates a Subscriber. nc may be nil when only handle is used.
func NewSubscriber(nc *nats.Conn, d *dispatch.Dispatcher, opts ...Option) *Subscriber {
	s := &Subscriber{
		nc:         nc,
		dispatcher: d,
		prefix:     DefaultPrefix,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EventSubject returns the subject for a single event.
func EventSubject(prefix, eventType string) string {
	return prefix + ".events." + eventType
}

// BatchSubject returns the subject for a batch operation.
func BatchSubject(prefix, operation string) string {
	return prefix + ".batch." + operation
}

// Start subscribes to the event and batch subjects.
func (s *Subscriber) Start() error {
	if s.nc == nil {
		return errors.New("no NATS connection")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, subject := range []string{s.prefix + ".events.>", s.prefix + ".batch.*"} {
		sub, err := s.nc.QueueSubscribe(subject, QueueGroup, s.onMsg)
		if err != nil {
			s.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.logger.Info("NATS subscriber started", "prefix", s.prefix)
	return nil
}

// Stop drains the subscriptions.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked()
}

func (s *Subscriber) unsubscribeLocked() {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			s.logger.Warn("Drain subscription", "subject", sub.Subject, "error", err)
		}
	}
	s.subs = nil
}

func (s *Subscriber) onMsg(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply := s.handle(ctx, msg.Subject, msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("Marshal reply", "subject", msg.Subject, "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("Respond", "subject", msg.Subject, "error", err)
	}
}

// handle decodes one request, dispatches it and builds the reply.
func (s *Subscriber) handle(ctx context.Context, subject string, data []byte) Reply {
	eventsPrefix := s.prefix + ".events."
	batchPrefix := s.prefix + ".batch."

	switch {
	case strings.HasPrefix(subject, eventsPrefix):
		return s.handleEvent(ctx, strings.TrimPrefix(subject, eventsPrefix), data)
	case strings.HasPrefix(subject, batchPrefix):
		return s.handleBatch(ctx, strings.TrimPrefix(subject, batchPrefix), data)
	default:
		return s.errorReply(CodeBadRequest, fmt.Sprintf("unexpected subject %q", subject))
	}
}

func (s *Subscriber) handleEvent(ctx context.Context, eventType string, data []byte) Reply {
	var payload dispatch.Payload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return s.errorReply(CodeBadRequest, "invalid JSON payload: "+err.Error())
		}
	}
	if payload == nil {
		payload = dispatch.Payload{}
	}

	res, err := s.dispatcher.Dispatch(ctx, eventType, payload)
	if err != nil {
		return s.dispatchError(eventType, err)
	}
	return Reply{Status: "success", Result: &res, Timestamp: s.timestamp()}
}

func (s *Subscriber) handleBatch(ctx context.Context, operation string, data []byte) Reply {
	var items []dispatch.Payload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return s.errorReply(CodeBadRequest, "invalid JSON batch: "+err.Error())
		}
	}

	results, err := s.dispatcher.DispatchBatch(ctx, operation, items)
	if err != nil {
		return s.dispatchError(dispatch.BatchPrefix+operation, err)
	}
	return Reply{Status: "success", Results: results, Processed: len(results), Timestamp: s.timestamp()}
}

func (s *Subscriber) dispatchError(eventType string, err error) Reply {
	if errors.Is(err, dispatch.ErrNoHandler) {
		return s.errorReply(CodeNoHandler, err.Error())
	}
	s.logger.Error("NATS dispatch failed", "event_type", eventType, "error", err)
	return s.errorReply(CodeFault, err.Error())
}

func (s *Subscriber) errorReply(code, msg string) Reply {
	return Reply{Error: msg, Code: code, Timestamp: s.timestamp()}
}

func (s *Subscriber) timestamp() string {
	return s.now().Format(time.RFC3339Nano)
}
