// Package middleware
// Author: momentics <momentics@gmail.com>
//
// Reference decorators for api.Application: response compression,
// in-memory sessions and panic recovery. Compose them with api.Chain or
// server.WithMiddleware.
package middleware
