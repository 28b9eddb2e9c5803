package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSetCookie(t *testing.T) {
	c, ok := ParseSetCookie("a=b; Domain=x.com; Path=/; Max-Age=10; Secure; HttpOnly; SameSite=Lax")
	require.True(t, ok)
	assert.Equal(t, "a", c.Name)
	assert.Equal(t, "b", c.Value)
	assert.Equal(t, "x.com", c.Domain)
	assert.Equal(t, "/", c.Path)
	require.NotNil(t, c.MaxAge)
	assert.EqualValues(t, 10, *c.MaxAge)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "Lax", c.SameSite)
}

func TestParseSetCookie_Edges(t *testing.T) {
	_, ok := ParseSetCookie("=value")
	assert.False(t, ok)

	c, ok := ParseSetCookie("flag")
	require.True(t, ok)
	assert.Equal(t, "flag", c.Name)
	assert.Empty(t, c.Value)

	c, ok = ParseSetCookie("a=b; SameSite=WEIRD; Max-Age=abc; Unknown=1")
	require.True(t, ok)
	assert.Equal(t, "weird", c.SameSite)
	assert.Nil(t, c.MaxAge)

	c, ok = ParseSetCookie("a=b=c; secure")
	require.True(t, ok)
	assert.Equal(t, "b=c", c.Value)
	assert.True(t, c.Secure)
}

func TestParseCookieExpires(t *testing.T) {
	want := time.Date(2015, time.October, 21, 7, 28, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
	}{
		{"netscape", "Wed, 21-Oct-2015 07:28:00 GMT"},
		{"rfc1123", "Wed, 21 Oct 2015 07:28:00 GMT"},
		{"rfc850", "Wednesday, 21-Oct-15 07:28:00 GMT"},
		{"asctime", "Wed Oct 21 07:28:00 2015"},
		{"rfc2822", "Wed, 21 Oct 2015 09:28:00 +0200"},
		{"rfc3339", "2015-10-21T07:28:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCookieExpires(tt.input)
			require.True(t, ok)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}

	_, ok := ParseCookieExpires("tomorrow")
	assert.False(t, ok)
}

func TestParseSetCookie_ExpiresNormalized(t *testing.T) {
	c, ok := ParseSetCookie("id=1; Expires=Wed, 21 Oct 2015 07:28:00 GMT")
	require.True(t, ok)
	assert.Equal(t, "2015-10-21T07:28:00Z", c.Expires)

	c, ok = ParseSetCookie("id=1; Expires=garbage")
	require.True(t, ok)
	assert.Empty(t, c.Expires)
}
