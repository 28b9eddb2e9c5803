package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(BadRequest, "URL missing host")

	assert.Equal(t, BadRequest, err.Kind)
	assert.Equal(t, "BadRequest: URL missing host", err.Error())
	assert.Contains(t, err.Location, "error_test.go")
	assert.False(t, err.Timestamp.IsZero())
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(HttpError, cause, "")

	assert.Equal(t, "connection refused", err.Message)
	assert.Equal(t, "HttpError: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	err = Wrap(IoError, cause, "Failed to read body file")
	assert.Equal(t, "IoError: Failed to read body file: connection refused", err.Error())
}

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(Timeout, "Request timed out"))

	assert.True(t, errors.Is(err, New(Timeout, "")))
	assert.False(t, errors.Is(err, New(HttpError, "")))
	assert.Equal(t, Timeout, KindOf(err))
	assert.True(t, IsKind(err, Timeout))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestWithContext(t *testing.T) {
	err := New(HttpError, "boom").WithContext(map[string]string{
		"method": "GET",
		"uri":    "https://example.com",
	})
	err.WithContext(map[string]string{"engine": "net/http"})

	require.Len(t, err.Context, 3)
	assert.Equal(t, "engine=net/http method=GET uri=https://example.com", err.ContextString())
	assert.Equal(t, "", New(HttpError, "x").ContextString())
}
