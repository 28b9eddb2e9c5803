package http

import (
	"strconv"
	"strings"
	"time"
)

// Expires layouts seen in the wild, tried in order. RFC 3339 is handled
// separately.
var cookieTimeLayouts = []string{
	"Mon, 02-Jan-2006 15:04:05 GMT",    // Netscape
	"Mon, 02 Jan 2006 15:04:05 GMT",    // RFC 1123
	"Monday, 02-Jan-06 15:04:05 GMT",   // RFC 850
	time.ANSIC,                         // asctime
	time.RFC1123Z,                      // RFC 2822
	"Mon, 2 Jan 2006 15:04:05 -0700",   // RFC 2822, single digit day
	"Mon, 2 Jan 2006 15:04:05 GMT",     // RFC 1123, single digit day
	"Monday, 02-Jan-2006 15:04:05 GMT", // RFC 850 with four digit year
}

// ParseSetCookie parses one Set-Cookie header value. Unknown attributes
// are ignored. It reports false when the cookie has no name.
func ParseSetCookie(value string) (Cookie, bool) {
	segments := strings.Split(value, ";")
	name, val, _ := strings.Cut(strings.TrimSpace(segments[0]), "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return Cookie{}, false
	}
	c := Cookie{Name: name, Value: strings.TrimSpace(val)}

	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if strings.EqualFold(seg, "secure") {
			c.Secure = true
			continue
		}
		if strings.EqualFold(seg, "httponly") {
			c.HttpOnly = true
			continue
		}
		key, attr, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		key, attr = strings.TrimSpace(key), strings.TrimSpace(attr)
		if key == "" || attr == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "domain":
			c.Domain = attr
		case "path":
			c.Path = attr
		case "expires":
			if t, ok := ParseCookieExpires(attr); ok {
				c.Expires = t.Format(time.RFC3339)
			}
		case "max-age":
			if n, err := strconv.ParseInt(attr, 10, 64); err == nil {
				c.MaxAge = &n
			}
		case "samesite":
			c.SameSite = normalizeSameSite(attr)
		}
	}
	return c, true
}

// ParseCookieExpires parses an Expires attribute into UTC.
func ParseCookieExpires(s string) (time.Time, bool) {
	for _, layout := range cookieTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func normalizeSameSite(v string) string {
	switch lower := strings.ToLower(v); lower {
	case "lax":
		return "Lax"
	case "strict":
		return "Strict"
	case "none":
		return "None"
	default:
		return lower
	}
}

// parseCookies parses every Set-Cookie value, skipping nameless ones.
func parseCookies(values []string) []Cookie {
	cookies := make([]Cookie, 0, len(values))
	for _, v := range values {
		if c, ok := ParseSetCookie(v); ok {
			cookies = append(cookies, c)
		}
	}
	return cookies
}
