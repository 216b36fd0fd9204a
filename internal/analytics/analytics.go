// Package analytics provides the fire-and-forget telemetry collaborator.
//
// Recording is asynchronous and never fatal: a full buffer drops the event
// rather than blocking engine operations.
package analytics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// DefaultBufferSize is the event channel buffer used by the slog recorder.
const DefaultBufferSize = 256

// Recorder receives discrete engine events.
type Recorder interface {
	// Record submits an event. Implementations must not block the caller and
	// must never fail the engine operation that emitted the event.
	Record(ctx context.Context, event models.AnalyticsEvent)
}

type noopRecorder struct{}

func (noopRecorder) Record(ctx context.Context, event models.AnalyticsEvent) {}

// Noop returns a recorder that discards all events.
func Noop() Recorder { return noopRecorder{} }

// SlogRecorder drains events on a background goroutine and writes them as
// structured log lines.
type SlogRecorder struct {
	events chan models.AnalyticsEvent
	done   chan struct{}
	once   sync.Once
}

// NewSlogRecorder creates and starts a slog-backed recorder.
func NewSlogRecorder() *SlogRecorder {
	r := &SlogRecorder{
		events: make(chan models.AnalyticsEvent, DefaultBufferSize),
		done:   make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record submits an event, dropping it when the buffer is full.
func (r *SlogRecorder) Record(ctx context.Context, event models.AnalyticsEvent) {
	select {
	case r.events <- event:
	default:
		slog.Debug("SlogRecorder.Record: buffer full, dropping event", "type", event.Type)
	}
}

// Stop stops the drain goroutine. Buffered events are flushed first.
func (r *SlogRecorder) Stop() {
	r.once.Do(func() { close(r.events); <-r.done })
}

func (r *SlogRecorder) drain() {
	defer close(r.done)
	for event := range r.events {
		slog.Info("analytics event",
			"type", event.Type,
			"user_id", event.UserID,
			"session_id", event.SessionID,
			"node_id", event.NodeID,
			"response_kind", event.ResponseKind,
			"elapsed_ms", event.Elapsed.Milliseconds(),
			"error", event.Error,
		)
	}
}

// CapturingRecorder retains events in memory for test assertions.
type CapturingRecorder struct {
	mu     sync.Mutex
	Events []models.AnalyticsEvent
}

// NewCapturingRecorder creates an empty capturing recorder.
func NewCapturingRecorder() *CapturingRecorder {
	return &CapturingRecorder{}
}

// Record appends the event.
func (r *CapturingRecorder) Record(ctx context.Context, event models.AnalyticsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
}

// ByType returns recorded events of one type.
func (r *CapturingRecorder) ByType(t models.EventType) []models.AnalyticsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AnalyticsEvent
	for _, e := range r.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
