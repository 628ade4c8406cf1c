// File: http1/mime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package http1

import "strings"

// MIMETypeUnknown is returned for extensions missing from the table.
const MIMETypeUnknown = "application/octet-stream"

var mimeTypes = map[string]string{
	"txt":  "text/plain",
	"html": "text/html",
	"htm":  "text/html",
	"js":   "text/javascript",
	"css":  "text/css",
	"xml":  "text/xml",
	"json": "application/json",
	"wasm": "application/wasm",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
}

// MIMEType maps a file extension, with or without the leading dot, to its
// content type.
func MIMEType(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	return MIMETypeUnknown
}
