// File: http1/status.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http1

// Status codes used by the server core.
const (
	StatusContinue           = 100
	StatusSwitchingProtocols = 101

	StatusOK             = 200
	StatusCreated        = 201
	StatusAccepted       = 202
	StatusNoContent      = 204
	StatusResetContent   = 205
	StatusPartialContent = 206

	StatusMovedPermanently  = 301
	StatusFound             = 302
	StatusSeeOther          = 303
	StatusNotModified       = 304
	StatusTemporaryRedirect = 307

	StatusBadRequest            = 400
	StatusUnauthorized          = 401
	StatusForbidden             = 403
	StatusNotFound              = 404
	StatusMethodNotAllowed      = 405
	StatusRequestTimeout        = 408
	StatusLengthRequired        = 411
	StatusRequestEntityTooLarge = 413

	StatusInternalServerError     = 500
	StatusNotImplemented          = 501
	StatusServiceUnavailable      = 503
	StatusHTTPVersionNotSupported = 505
)

var statusText = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	203: "Non-Authoritative Information",
	204: "No Content",
	205: "Reset Content",
	206: "Partial Content",
	300: "Multiple Choices",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	305: "Use Proxy",
	306: "(Unused)",
	307: "Temporary Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	402: "Payment Required",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	406: "Not Acceptable",
	407: "Proxy Authentication Required",
	408: "Request Timeout",
	409: "Conflict",
	410: "Gone",
	411: "Length Required",
	412: "Precondition Failed",
	413: "Request Entity Too Large",
	414: "Request-URI Too Long",
	415: "Unsupported Media Type",
	416: "Requested Range Not Satisfiable",
	417: "Expectation Failed",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for code, or "Unknown".
func StatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return "Unknown"
}

// BodyAllowed reports whether a response with the given status may carry
// a body. 1xx, 204, 205 and 304 responses never do.
func BodyAllowed(code int) bool {
	switch {
	case code >= 100 && code < 200:
		return false
	case code == StatusNoContent, code == StatusResetContent, code == StatusNotModified:
		return false
	}
	return true
}
