// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp binds the listening sockets of the server and exposes their
// descriptors so the accept loop can wait on all of them at once.
package tcp
