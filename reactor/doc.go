// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness wait sets the server parks idle
// sockets in: an epoll instance with a wake descriptor on Linux, and a
// zero-timeout probe that tells pending bytes from a closed peer.
package reactor
