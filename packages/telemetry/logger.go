package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxLogBytes caps body previews when the policy does not set one.
const DefaultMaxLogBytes = 128 * 1024

// Policy controls what the Logger writes about payloads.
type Policy struct {
	MaxBytes int
	Redact   bool
	Bodies   bool
}

// MaxLogBytes returns the effective preview cap.
func (p Policy) MaxLogBytes() int {
	if p.MaxBytes <= 0 {
		return DefaultMaxLogBytes
	}
	return p.MaxBytes
}

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// Logger stamps events with a request id, a level and the time elapsed
// since the request started.
type Logger struct {
	sink      Sink
	requestID string
	start     time.Time
	policy    Policy
	now       func() time.Time
}

// NewLogger returns a Logger for one request. A nil sink discards events.
func NewLogger(sink Sink, requestID string, policy Policy) *Logger {
	if sink == nil {
		sink = Discard
	}
	return &Logger{
		sink:      sink,
		requestID: requestID,
		start:     time.Now(),
		policy:    policy,
		now:       time.Now,
	}
}

func (l *Logger) RequestID() string { return l.requestID }

func (l *Logger) Policy() Policy { return l.policy }

// Elapsed is the time since the logger was created.
func (l *Logger) Elapsed() time.Duration { return l.now().Sub(l.start) }

func (l *Logger) event(level Level, category, phase, message string, details Details, bytesLogged *int64, truncated *bool) {
	infoType := phase
	if infoType == "" {
		infoType = category
	}
	now := l.now()
	l.sink.Emit(Event{
		RequestID:   l.requestID,
		Timestamp:   now.UTC(),
		Level:       level,
		InfoType:    infoType,
		Category:    category,
		Phase:       phase,
		Message:     message,
		ElapsedMs:   now.Sub(l.start).Milliseconds(),
		Details:     details,
		BytesLogged: bytesLogged,
		Truncated:   truncated,
	})
}

func (l *Logger) Debug(category, phase, message string, details Details) {
	l.event(LevelDebug, category, phase, message, details, nil, nil)
}

func (l *Logger) Info(category, phase, message string, details Details) {
	l.event(LevelInfo, category, phase, message, details, nil, nil)
}

func (l *Logger) Warn(category, phase, message string, details Details) {
	l.event(LevelWarning, category, phase, message, details, nil, nil)
}

func (l *Logger) Error(category, phase, message string, details Details) {
	l.event(LevelError, category, phase, message, details, nil, nil)
}

// Headers emits one debug event per header line, sorted by name, redacting
// credentials when the policy asks for it.
func (l *Logger) Headers(headers http.Header, phase, prefix string) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range headers[name] {
			l.Header(name, value, phase, prefix)
		}
	}
}

// Header emits a single header line.
func (l *Logger) Header(name, value, phase, prefix string) {
	redacted := l.policy.Redact && sensitiveHeaders[strings.ToLower(name)]
	line := RedactHeader(name, value, l.policy.Redact)
	l.Debug("http", phase, prefix+" "+line, Details{
		"name":     name,
		"display":  line,
		"length":   len(value),
		"redacted": redacted,
	})
}

// RedactHeader renders "Name: value", replacing credential values with
// their length when redact is set.
func RedactHeader(name, value string, redact bool) string {
	if redact && sensitiveHeaders[strings.ToLower(name)] {
		return fmt.Sprintf("%s: [REDACTED:%d]", name, len(value))
	}
	if !utf8.ValidString(value) {
		return fmt.Sprintf("%s: <binary:%d bytes>", name, len(value))
	}
	return name + ": " + value
}

// Body emits a payload preview. It does nothing for empty payloads or when
// body logging is disabled.
func (l *Logger) Body(category, phase, prefix string, body []byte) {
	if len(body) == 0 || !l.policy.Bodies {
		return
	}
	preview, logged, truncated := Preview(body, l.policy.MaxLogBytes())
	n := int64(logged)
	l.event(LevelDebug, category, phase, prefix+" "+preview, Details{
		"size":        len(body),
		"loggedBytes": logged,
		"truncated":   truncated,
		"preview":     preview,
	}, &n, &truncated)
}

// Preview renders at most max bytes of body. UTF-8 text is cut at a rune
// boundary and suffixed with an ellipsis when truncated; anything else
// becomes an opaque byte count.
func Preview(body []byte, max int) (preview string, logged int, truncated bool) {
	truncated = len(body) > max
	logged = len(body)
	if truncated {
		logged = max
		for logged > 0 && logged < len(body) && !utf8.RuneStart(body[logged]) {
			logged--
		}
	}
	head := body[:logged]
	if !utf8.Valid(head) {
		suffix := ""
		if truncated {
			suffix = ", truncated"
		}
		return fmt.Sprintf("<binary:%d bytes%s>", len(body), suffix), logged, truncated
	}
	if truncated {
		return string(head) + "…", logged, truncated
	}
	return string(head), logged, truncated
}
