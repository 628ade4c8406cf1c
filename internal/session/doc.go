// Package session
// Author: momentics <momentics@gmail.com>
//
// In-memory HTTP session state keyed by the session cookie.
// Sessions live in a sharded store and expire after a period without
// access; values inside a session may carry their own expiry.

package session
