// File: middleware/recover.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
)

// Recover turns a panic in next into a 500 error and logs its stack.
func Recover(next api.Application) api.Application {
	return api.ApplicationFunc(func(srv api.Server, req *http1.Request, hdr *http1.ResponseHeader) (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				srv.Logger().Error("application panic",
					"path", req.Path(),
					"panic", r,
					"stack", string(debug.Stack()))
				res, err = nil, http1.NewStatusError(http1.StatusInternalServerError, fmt.Sprint(r))
			}
		}()
		return next.Process(srv, req, hdr)
	})
}
