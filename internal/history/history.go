package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/craftd/internal/store"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
)

// Event represents a server lifecycle event exported to analytics systems.
type Event struct {
	Type       EventType    `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Record     store.Record `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

const sendTimeout = 5 * time.Second

// Emit sends an event to the sink in the background. History export is
// best-effort: failures are logged, never propagated to the lifecycle path.
func Emit(sink Sink, e Event) {
	if sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := sink.Send(ctx, e); err != nil {
			slog.Warn("history event export failed", "type", e.Type, "server", e.Record.Name, "error", err)
		}
	}()
}
