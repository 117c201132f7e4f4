// Package dispatch routes named events to registered handlers. A Dispatcher
// is an explicit instance owned by whichever transport serves it; there is
// no package-level registry.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Event types recognized on the top-level dispatch path.
const (
	EventTaskCreate     = "task.create"
	EventTaskComplete   = "task.complete"
	EventTaskError      = "task.error"
	EventTaskStatus     = "task.status"
	EventReportGenerate = "report.generate"
	EventPlanImport     = "plan.import"
)

// BatchPrefix prefixes the handler key of a batch operation.
const BatchPrefix = "batch."

// KnownEvents lists the recognized top-level event types.
var KnownEvents = []string{
	EventTaskCreate,
	EventTaskComplete,
	EventTaskError,
	EventTaskStatus,
	EventReportGenerate,
	EventPlanImport,
}

// IsKnownEvent reports whether eventType is a recognized top-level event.
func IsKnownEvent(eventType string) bool {
	for _, e := range KnownEvents {
		if e == eventType {
			return true
		}
	}
	return false
}

// Handler processes one event payload.
type Handler func(ctx context.Context, p Payload) (Result, error)

// Dispatcher maps event types to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates an empty Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register associates h with eventType, replacing any earlier handler.
func (d *Dispatcher) Register(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = h
	d.logger.Debug("Registered handler", "event_type", eventType)
}

// EventTypes returns the registered event types, sorted.
func (d *Dispatcher) EventTypes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (d *Dispatcher) handler(eventType string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[eventType]
	return h, ok
}

// Dispatch routes one event. A registered handler is always invoked. An
// unregistered known event returns ErrNoHandler; an unregistered unknown
// event returns an unknown_event Result and no error. A handler fault is
// returned wrapped in *HandlerError.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, p Payload) (Result, error) {
	start := time.Now()

	h, ok := d.handler(eventType)
	if !ok {
		if !IsKnownEvent(eventType) {
			d.logger.Warn("Unknown event type", "event_type", eventType)
			d.metrics.observe("unknown", outcomeUnknown, time.Since(start))
			return Result{
				Status: StatusUnknownEvent,
				Error:  "Unknown event type: " + eventType,
			}, nil
		}
		d.metrics.observe(eventType, outcomeNoHandler, time.Since(start))
		return Result{}, fmt.Errorf("%w for %s", ErrNoHandler, eventType)
	}

	res, err := h(ctx, p.Normalize())
	if err != nil {
		d.logger.Error("Handler failed", "event_type", eventType, "error", err)
		d.metrics.observe(eventType, outcomeFault, time.Since(start))
		return Result{}, &HandlerError{EventType: eventType, Index: -1, Err: err}
	}
	d.metrics.observe(eventType, outcomeOK, time.Since(start))
	return res, nil
}

// DispatchBatch applies the "batch.<operation>" handler to each item in
// order and returns one result per item. The first handler fault aborts
// the batch; items before it keep their effects.
func (d *Dispatcher) DispatchBatch(ctx context.Context, operation string, items []Payload) ([]Result, error) {
	eventType := BatchPrefix + operation
	start := time.Now()

	h, ok := d.handler(eventType)
	if !ok {
		// operation is caller input; keep it out of the label set.
		d.metrics.observe("unknown", outcomeNoHandler, time.Since(start))
		return nil, fmt.Errorf("%w for %s", ErrNoHandler, eventType)
	}

	results := make([]Result, 0, len(items))
	for i, item := range items {
		res, err := h(ctx, item.Normalize())
		if err != nil {
			d.logger.Error("Batch handler failed", "event_type", eventType, "index", i, "error", err)
			d.metrics.observe(eventType, outcomeFault, time.Since(start))
			return nil, &HandlerError{EventType: eventType, Index: i, Err: err}
		}
		results = append(results, res)
	}

	d.metrics.observe(eventType, outcomeOK, time.Since(start))
	d.metrics.batchItems(eventType, len(results))
	d.logger.Info("Processed batch", "event_type", eventType, "items", len(results))
	return results, nil
}
