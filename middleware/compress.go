// File: middleware/compress.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Response compression decorator.

package middleware

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
	"github.com/momentics/hioload-httpd/pool"
)

// Compress encodes immediate 200 bodies with deflate or gzip, whichever
// the client accepts, deflate first. The encoded body replaces the
// original only when it is strictly smaller. Streams, comet and upgrade
// results and responses that already carry Content-Encoding pass through.
func Compress(next api.Application) api.Application {
	return api.ApplicationFunc(func(srv api.Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
		encoding := negotiateEncoding(req.Header(http1.HeaderAcceptEncoding))

		res, err := next.Process(srv, req, hdr)
		if err != nil || encoding == "" || hdr.Status() != http1.StatusOK {
			return res, err
		}
		if _, ok := hdr.Lookup(http1.HeaderContentEncoding); ok {
			return res, nil
		}

		var raw []byte
		switch v := res.(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			return res, nil
		}

		out, cerr := encode(encoding, raw)
		if cerr != nil {
			srv.Logger().Warn("compression failed", "encoding", encoding, "err", cerr)
			return res, nil
		}
		if len(out) >= len(raw) {
			srv.Logger().Debug("compression bypassed", "encoding", encoding, "size", len(raw), "compressed", len(out))
			return res, nil
		}
		hdr.Set(http1.HeaderContentEncoding, encoding)
		hdr.SetContentLength(int64(len(out)))
		srv.Logger().Debug("compressed response", "encoding", encoding, "size", len(raw), "compressed", len(out))
		return out, nil
	})
}

// negotiateEncoding picks "deflate" or "gzip" from an Accept-Encoding
// value. Codings listed with q=0 are refused.
func negotiateEncoding(accept string) string {
	var gz, df bool
	for _, part := range strings.Split(accept, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok && isZeroQ(q) {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gzip":
			gz = true
		case "deflate":
			df = true
		}
	}
	switch {
	case df:
		return "deflate"
	case gz:
		return "gzip"
	}
	return ""
}

func isZeroQ(q string) bool {
	q = strings.TrimSpace(q)
	return strings.Trim(q, "0.") == "" && q != ""
}

var (
	bufPool  = pool.NewSyncPool(func() *bytes.Buffer { return new(bytes.Buffer) }).WithReset((*bytes.Buffer).Reset)
	gzipPool = pool.NewSyncPool(func() *gzip.Writer { return gzip.NewWriter(io.Discard) })
	zlibPool = pool.NewSyncPool(func() *zlib.Writer { return zlib.NewWriter(io.Discard) })
)

// encode compresses raw with pooled encoders. The result is a copy owned
// by the caller.
func encode(encoding string, raw []byte) ([]byte, error) {
	buf := bufPool.Get()
	defer bufPool.Put(buf)

	var w io.WriteCloser
	if encoding == "gzip" {
		gz := gzipPool.Get()
		gz.Reset(buf)
		defer gzipPool.Put(gz)
		w = gz
	} else {
		zw := zlibPool.Get()
		zw.Reset(buf)
		defer zlibPool.Put(zw)
		w = zw
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}
