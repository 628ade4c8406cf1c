// Package server
// Author: momentics <momentics@gmail.com>
//
// An embedded HTTP/1.1 server speaking directly over TCP sockets.
//
// One goroutine accepts connections and hands them to a fixed pool of
// workers. A worker parses one request, runs the application and then
// closes the connection, parks it for keep-alive, suspends it as a comet
// (long-poll) wait, or upgrades it to WebSocket framing. Three sweeper
// goroutines watch the parked, suspended and upgraded connections and
// reactivate them when they become readable, signalled or expired.
//
// Readiness waits use epoll, so the server runs on Linux only; New fails
// with reactor.ErrUnsupported elsewhere.
package server
