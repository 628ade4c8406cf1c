// File: http1/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package http1 implements the HTTP/1.x message layer of hioload-httpd:
// byte-level request parsing from a buffered connection, the mutable
// response header accumulator and its exact wire rendering, cookies,
// and the static lookup tables (header names, status phrases, MIME types).
//
// Nothing in this package touches sockets directly; the parser pulls bytes
// through the Source contract implemented by transport.Conn.
package http1
