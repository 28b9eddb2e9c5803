package http

import (
	"errors"
	"strings"

	"golang.org/x/net/http2"
)

// isHTTP2ProtocolError reports whether err is an HTTP/2 protocol failure
// or stream reset that an HTTP/1.1 retry may avoid. Typed x/net/http2
// errors are checked first; other transports only leave the message.
func isHTTP2ProtocolError(err error) bool {
	if err == nil {
		return false
	}

	var se http2.StreamError
	if errors.As(err, &se) {
		return true
	}
	var ce http2.ConnectionError
	if errors.As(err, &ce) {
		return fallbackCode(http2.ErrCode(ce))
	}
	var ge http2.GoAwayError
	if errors.As(err, &ge) {
		return fallbackCode(ge.ErrCode)
	}

	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "http2") && !strings.Contains(msg, "h2") {
		return false
	}
	return strings.Contains(msg, "protocol_error") ||
		strings.Contains(msg, "protocol error") ||
		strings.Contains(msg, "reset")
}

func fallbackCode(code http2.ErrCode) bool {
	return code == http2.ErrCodeProtocol || code == http2.ErrCodeInternal
}
