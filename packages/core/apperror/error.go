// Package apperror defines the error vocabulary shared by the knurl engine,
// its connector and the CLI.
package apperror

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Kind classifies an engine failure.
type Kind string

const (
	// BadRequest covers malformed URLs, methods, headers, multipart parts,
	// CA bundles and unsupported redirect targets.
	BadRequest Kind = "BadRequest"
	// IoError covers body, CA bundle and temp-file read/write failures.
	IoError Kind = "IoError"
	// Timeout is a per-attempt deadline expiry.
	Timeout Kind = "Timeout"
	// HttpError is any unclassified transport or protocol failure.
	HttpError Kind = "HttpError"
	// UserCancelled means cancellation was observed before completion.
	UserCancelled Kind = "UserCancelled"
)

// Error is the structured error returned by the engine.
type Error struct {
	Kind      Kind              `json:"kind"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Location  string            `json:"location,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Location:  caller(),
		Timestamp: time.Now().UTC(),
	}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	e := New(kind, fmt.Sprintf(format, args...))
	e.Location = caller()
	return e
}

// Wrap creates an error of the given kind carrying cause. The message
// defaults to the cause's text.
func Wrap(kind Kind, cause error, message string) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	e := New(kind, message)
	e.Cause = cause
	e.Location = caller()
	return e
}

// WithContext attaches contextual metadata and returns the same error.
func (e *Error) WithContext(ctx map[string]string) *Error {
	if len(ctx) == 0 {
		return e
	}
	if e.Context == nil {
		e.Context = make(map[string]string, len(ctx))
	}
	for k, v := range ctx {
		e.Context[k] = v
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil && e.Cause.Error() != e.Message {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports kind equality so errors.Is(err, apperror.New(apperror.Timeout, ""))
// matches any Timeout error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// ContextString renders the context map as sorted key=value pairs.
func (e *Error) ContextString() string {
	if len(e.Context) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Context[k])
	}
	return strings.Join(parts, " ")
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return ""
	}
	if idx := strings.LastIndex(file, "/packages/"); idx >= 0 {
		file = file[idx+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}
