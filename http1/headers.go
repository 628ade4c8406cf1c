// File: http1/headers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Standard header names and the case-insensitive canonicalization table.

package http1

import "strings"

// General headers.
const (
	HeaderCacheControl     = "Cache-Control"
	HeaderConnection       = "Connection"
	HeaderDate             = "Date"
	HeaderPragma           = "Pragma"
	HeaderTrailer          = "Trailer"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderUpgrade          = "Upgrade"
	HeaderVia              = "Via"
	HeaderWarning          = "Warning"
)

// Request headers.
const (
	HeaderAccept             = "Accept"
	HeaderAcceptCharset      = "Accept-Charset"
	HeaderAcceptEncoding     = "Accept-Encoding"
	HeaderAcceptLanguage     = "Accept-Language"
	HeaderAuthorization      = "Authorization"
	HeaderExpect             = "Expect"
	HeaderFrom               = "From"
	HeaderHost               = "Host"
	HeaderIfMatch            = "If-Match"
	HeaderIfModifiedSince    = "If-Modified-Since"
	HeaderIfNoneMatch        = "If-None-Match"
	HeaderIfRange            = "If-Range"
	HeaderIfUnmodifiedSince  = "If-Unmodified-Since"
	HeaderMaxForwards        = "Max-Forwards"
	HeaderProxyAuthorization = "Proxy-Authorization"
	HeaderRange              = "Range"
	HeaderReferer            = "Referer"
	HeaderTE                 = "TE"
	HeaderUserAgent          = "User-Agent"
	HeaderOrigin             = "Origin"
)

// Response headers.
const (
	HeaderAcceptRanges      = "Accept-Ranges"
	HeaderAge               = "Age"
	HeaderETag              = "ETag"
	HeaderLocation          = "Location"
	HeaderProxyAuthenticate = "Proxy-Authenticate"
	HeaderRetryAfter        = "Retry-After"
	HeaderServer            = "Server"
	HeaderVary              = "Vary"
	HeaderWWWAuthenticate   = "WWW-Authenticate"
)

// Entity headers.
const (
	HeaderAllow           = "Allow"
	HeaderContentEncoding = "Content-Encoding"
	HeaderContentLanguage = "Content-Language"
	HeaderContentLength   = "Content-Length"
	HeaderContentLocation = "Content-Location"
	HeaderContentMD5      = "Content-MD5"
	HeaderContentRange    = "Content-Range"
	HeaderContentType     = "Content-Type"
	HeaderExpires         = "Expires"
	HeaderLastModified    = "Last-Modified"
)

// Cookie and WebSocket handshake headers.
const (
	HeaderCookie              = "Cookie"
	HeaderSetCookie           = "Set-Cookie"
	HeaderSecWebSocketKey     = "Sec-WebSocket-Key"
	HeaderSecWebSocketVersion = "Sec-WebSocket-Version"
	HeaderSecWebSocketAccept  = "Sec-WebSocket-Accept"
)

// canonicalNames maps lower-cased names to their canonical spelling.
// Built once at init and only read afterwards.
var canonicalNames = func() map[string]string {
	names := []string{
		HeaderCacheControl, HeaderConnection, HeaderDate, HeaderPragma,
		HeaderTrailer, HeaderTransferEncoding, HeaderUpgrade, HeaderVia,
		HeaderWarning, HeaderAccept, HeaderAcceptCharset, HeaderAcceptEncoding,
		HeaderAcceptLanguage, HeaderAuthorization, HeaderExpect, HeaderFrom,
		HeaderHost, HeaderIfMatch, HeaderIfModifiedSince, HeaderIfNoneMatch,
		HeaderIfRange, HeaderIfUnmodifiedSince, HeaderMaxForwards,
		HeaderProxyAuthorization, HeaderRange, HeaderReferer, HeaderTE,
		HeaderUserAgent, HeaderOrigin, HeaderAcceptRanges, HeaderAge,
		HeaderETag, HeaderLocation, HeaderProxyAuthenticate, HeaderRetryAfter,
		HeaderServer, HeaderVary, HeaderWWWAuthenticate, HeaderAllow,
		HeaderContentEncoding, HeaderContentLanguage, HeaderContentLength,
		HeaderContentLocation, HeaderContentMD5, HeaderContentRange,
		HeaderContentType, HeaderExpires, HeaderLastModified, HeaderCookie,
		HeaderSetCookie, HeaderSecWebSocketKey, HeaderSecWebSocketVersion,
		HeaderSecWebSocketAccept,
	}
	m := make(map[string]string, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = n
	}
	return m
}()

// CanonicalHeaderName returns the canonical spelling of a standard header
// name. Unknown names are returned unchanged.
func CanonicalHeaderName(name string) string {
	if c, ok := canonicalNames[strings.ToLower(name)]; ok {
		return c
	}
	return name
}

// headerHasToken reports whether a comma separated header value contains
// token, compared case-insensitively.
func headerHasToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
