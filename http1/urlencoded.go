// File: http1/urlencoded.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Query string and form body decoding.

package http1

import (
	"net/url"
	"strings"
)

// parseQuery fills dst from a raw query string. Items split on '&', each
// item at its first '='; a bare key maps to "". Values are kept raw and the
// last duplicate key wins.
func parseQuery(query string, dst map[string]string) {
	for _, item := range strings.Split(query, "&") {
		if item == "" {
			continue
		}
		key, val, _ := strings.Cut(item, "=")
		dst[key] = val
	}
}

// URLDecode decodes percent escapes and '+' as space. Malformed escapes
// are kept literally.
func URLDecode(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		return d
	}
	return strings.ReplaceAll(s, "+", " ")
}

// ParseURLEncoded decodes an application/x-www-form-urlencoded payload.
// Keys and values are decoded and the last duplicate wins.
func ParseURLEncoded(s string) map[string]string {
	out := make(map[string]string)
	for _, item := range strings.Split(s, "&") {
		if item == "" {
			continue
		}
		key, val, _ := strings.Cut(item, "=")
		out[URLDecode(key)] = URLDecode(val)
	}
	return out
}
