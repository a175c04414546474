package observability

import (
	"log/slog"

	"github.com/google/uuid"

	"x402resolve/core/events"
	"x402resolve/core/types"
)

type attributed interface {
	Event() *types.Event
}

// LogEmitter forwards module events to the structured logger, stamping each
// with a unique event id so downstream log pipelines can deduplicate.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter wraps a logger as an event emitter.
func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log}
}

// Emit logs the event with its type and attributes.
func (e *LogEmitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	args := []any{
		slog.String("eventId", uuid.NewString()),
		slog.String("eventType", evt.EventType()),
	}
	if carrier, ok := evt.(attributed); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	e.log.Info("module event", args...)
}
