package http

import (
	"encoding/json"
	"os"
	"strings"
	"time"
)

// Cookie is a parsed Set-Cookie header. Unset attributes are zero.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  string `json:"expires,omitempty"`
	MaxAge   *int64 `json:"maxAge,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HttpOnly bool   `json:"httpOnly,omitempty"`
	SameSite string `json:"sameSite,omitempty"`
}

// Response is the outcome of a completed execution. Exactly one of Body
// and FilePath carries the payload; a spooled file belongs to the caller.
type Response struct {
	RequestID  string        `json:"requestId"`
	StatusCode int           `json:"status"`
	Status     string        `json:"statusText"`
	Proto      string        `json:"proto"`
	Headers    []Header      `json:"headers"`
	Cookies    []Cookie      `json:"cookies"`
	Body       []byte        `json:"-"`
	FilePath   string        `json:"filePath,omitempty"`
	Size       int64         `json:"size"`
	Duration   time.Duration `json:"-"`
	Timestamp  time.Time     `json:"timestamp"`
}

// IsSpooled reports whether the body was written to FilePath.
func (r *Response) IsSpooled() bool {
	return r.FilePath != ""
}

// ReadBody returns the payload, reading the spool file when needed.
func (r *Response) ReadBody() ([]byte, error) {
	if r.IsSpooled() {
		return os.ReadFile(r.FilePath)
	}
	return r.Body, nil
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

func (r *Response) BodyJSON() (any, error) {
	data, err := r.ReadBody()
	if err != nil {
		return nil, err
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Header returns the first value of key.
func (r *Response) Header(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, key) {
			return h.Value
		}
	}
	return ""
}

// HeaderValues returns every value of key in received order.
func (r *Response) HeaderValues(key string) []string {
	var out []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, key) {
			out = append(out, h.Value)
		}
	}
	return out
}

// Cookie returns the first cookie named name.
func (r *Response) Cookie(name string) (Cookie, bool) {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c, true
		}
	}
	return Cookie{}, false
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsJSON() bool {
	ct := r.ContentType()
	return strings.Contains(ct, "application/json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
