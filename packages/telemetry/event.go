package telemetry

import "time"

// Level is the severity of an Event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Details is the structured payload attached to an Event.
type Details map[string]any

// Event is one diagnostic record emitted while a request executes.
type Event struct {
	RequestID   string    `json:"requestId"`
	Timestamp   time.Time `json:"timestamp"`
	Level       Level     `json:"level"`
	InfoType    string    `json:"infoType,omitempty"`
	Category    string    `json:"category"`
	Phase       string    `json:"phase,omitempty"`
	Message     string    `json:"message"`
	ElapsedMs   int64     `json:"elapsedMs"`
	Details     Details   `json:"details,omitempty"`
	BytesLogged *int64    `json:"bytesLogged,omitempty"`
	Truncated   *bool     `json:"truncated,omitempty"`
}

// Sink receives events. Emit must not block the caller for long and must
// not fail the request; wrap slow sinks in an AsyncSink.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
