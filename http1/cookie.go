// File: http1/cookie.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http1

import (
	"strconv"
	"strings"
	"time"
)

// SameSite controls the SameSite cookie attribute.
type SameSite int

const (
	SameSiteDefaultMode SameSite = iota
	SameSiteLaxMode
	SameSiteStrictMode
	SameSiteNoneMode
)

// TimeFormat is the RFC 1123 layout used for Date and cookie expiry values.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Cookie is a cookie emitted through ResponseHeader.AddCookie.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite SameSite
}

// String renders the cookie without its Path attribute; the response
// header appends "; path=" itself when Path is set.
func (c *Cookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.Domain != "" {
		b.WriteString("; domain=")
		b.WriteString(c.Domain)
	}
	if !c.Expires.IsZero() {
		b.WriteString("; expires=")
		b.WriteString(c.Expires.UTC().Format(TimeFormat))
	}
	if c.MaxAge > 0 {
		b.WriteString("; max-age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	} else if c.MaxAge < 0 {
		b.WriteString("; max-age=0")
	}
	if c.Secure {
		b.WriteString("; secure")
	}
	if c.HttpOnly {
		b.WriteString("; httponly")
	}
	switch c.SameSite {
	case SameSiteLaxMode:
		b.WriteString("; samesite=Lax")
	case SameSiteStrictMode:
		b.WriteString("; samesite=Strict")
	case SameSiteNoneMode:
		b.WriteString("; samesite=None")
	}
	return b.String()
}

// parseCookieHeader splits a Cookie request header into name/value pairs.
// Items without '=' are skipped, the last duplicate name wins.
func parseCookieHeader(value string, dst map[string]string) {
	for _, item := range strings.Split(value, ";") {
		name, val, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		dst[name] = strings.TrimSpace(val)
	}
}
