package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultAsyncBuffer is the queue length used by NewAsyncSink when size <= 0.
const DefaultAsyncBuffer = 1024

// AsyncSink forwards events to a slower sink on a background goroutine.
// When the queue is full the event is dropped and counted.
type AsyncSink struct {
	next    Sink
	queue   chan Event
	dropped atomic.Int64
	once    sync.Once
	done    chan struct{}
}

// NewAsyncSink starts the forwarding goroutine. Close must be called to
// flush queued events.
func NewAsyncSink(next Sink, size int) *AsyncSink {
	if size <= 0 {
		size = DefaultAsyncBuffer
	}
	s := &AsyncSink{
		next:  next,
		queue: make(chan Event, size),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for e := range s.queue {
		s.next.Emit(e)
	}
}

func (s *AsyncSink) Emit(e Event) {
	defer func() {
		// emitting after Close
		if recover() != nil {
			s.dropped.Add(1)
		}
	}()
	select {
	case s.queue <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded so far.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain.
func (s *AsyncSink) Close() {
	s.once.Do(func() { close(s.queue) })
	<-s.done
}

// SlogSink writes events as structured slog records.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink writing to logger, or to slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(e Event) {
	attrs := []slog.Attr{
		slog.String("request_id", e.RequestID),
		slog.String("category", e.Category),
		slog.Int64("elapsed_ms", e.ElapsedMs),
	}
	if e.Phase != "" {
		attrs = append(attrs, slog.String("phase", e.Phase))
	}
	if e.BytesLogged != nil {
		attrs = append(attrs, slog.Int64("bytes_logged", *e.BytesLogged))
	}
	if e.Truncated != nil {
		attrs = append(attrs, slog.Bool("truncated", *e.Truncated))
	}
	if len(e.Details) > 0 {
		attrs = append(attrs, slog.Any("details", map[string]any(e.Details)))
	}
	s.logger.LogAttrs(context.Background(), slogLevel(e.Level), e.Message, attrs...)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Phase returns the recorded events for category/phase.
func (r *Recorder) Phase(category, phase string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Category == category && e.Phase == phase {
			out = append(out, e)
		}
	}
	return out
}
