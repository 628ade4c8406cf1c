// File: middleware/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cookie-bound in-memory sessions.

package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
	"github.com/momentics/hioload-httpd/internal/session"
)

// SessionCookie is the name of the session id cookie.
const SessionCookie = "ksid"

// SessionData is the per-client state exposed to applications.
type SessionData interface {
	ID() string
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Keys() []string
}

type sessionKey struct{}

// SessionFrom returns the session attached by Sessions.Middleware.
func SessionFrom(req *http1.Request) (SessionData, bool) {
	s, ok := req.Context().Value(sessionKey{}).(*session.Session)
	return s, ok
}

// Sessions keeps session state in memory, keyed by the ksid cookie.
type Sessions struct {
	store         *session.Store
	cookieExpires time.Duration
}

// NewSessions creates a session manager whose sessions expire after ttl
// without a request. The cookie itself is long-lived.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		store:         session.NewStore(16, ttl),
		cookieExpires: 10 * 365 * 24 * time.Hour,
	}
}

// Len returns the number of stored sessions.
func (s *Sessions) Len() int { return s.store.Len() }

// Run evicts idle sessions every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	s.store.Run(ctx, interval)
}

// Middleware attaches the caller's session to the request context. Clients
// without a known session get a fresh id and a Set-Cookie.
func (s *Sessions) Middleware() api.Middleware {
	return func(next api.Application) api.Application {
		return api.ApplicationFunc(func(srv api.Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
			var sess *session.Session
			if id, ok := req.Cookie(SessionCookie); ok && id != "" {
				sess, _ = s.store.Get(id)
			}
			if sess == nil {
				sess, _ = s.store.GetOrCreate(uuid.NewString())
				hdr.AddCookie(&http1.Cookie{
					Name:     SessionCookie,
					Value:    sess.ID(),
					Path:     "/",
					Expires:  time.Now().Add(s.cookieExpires),
					HttpOnly: true,
				})
			}
			req = req.WithContext(context.WithValue(req.Context(), sessionKey{}, sess))
			return next.Process(srv, req, hdr)
		})
	}
}
