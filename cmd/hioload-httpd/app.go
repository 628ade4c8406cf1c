// File: cmd/hioload-httpd/app.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Demo application: plain, comet, websocket and session routes.

package main

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
	"github.com/momentics/hioload-httpd/middleware"
	"github.com/momentics/hioload-httpd/protocol"
)

// board is a message slot whose readers wait on a channel that is closed
// and replaced on every post.
type board struct {
	mu      sync.Mutex
	message string
	changed chan struct{}
}

func newBoard() *board {
	return &board{changed: make(chan struct{})}
}

func (b *board) wait() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.changed
}

func (b *board) post(msg string) {
	b.mu.Lock()
	b.message = msg
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

func (b *board) read() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.message
}

type demo struct {
	board       *board
	pollTimeout time.Duration
}

func (d *demo) Process(srv api.Server, req *http1.Request, hdr *http1.ResponseHeader) (any, error) {
	switch req.Path() {
	case "/", "/hello":
		hdr.Set(http1.HeaderContentType, http1.MIMEType("txt"))
		return "Hello World", nil

	case "/poll":
		return api.NewComet(req, hdr, d.board.wait(), d.pollTimeout, nil, func(c *api.Comet, timedOut bool) (any, error) {
			c.Response.Set(http1.HeaderContentType, http1.MIMEType("txt"))
			if timedOut {
				c.Response.SetStatus(http1.StatusNoContent)
				return nil, nil
			}
			return d.board.read(), nil
		}), nil

	case "/post":
		if req.Method() != http1.MethodPost {
			return nil, http1.NewStatusError(http1.StatusMethodNotAllowed, "POST only")
		}
		form, err := req.Form(64 << 10)
		if err != nil {
			return nil, err
		}
		d.board.post(form["message"])
		return "posted", nil

	case "/ws":
		return api.NewWebSocket(req, hdr, func(ws *api.WebSocket, ev api.WebSocketEvent) {
			switch ev.Opcode {
			case protocol.OpcodeText:
				ws.SendText(string(ev.Payload))
			case protocol.OpcodeBinary:
				ws.SendBinary(ev.Payload)
			}
		}, nil)

	case "/counter":
		sess, ok := middleware.SessionFrom(req)
		if !ok {
			return nil, http1.NewStatusError(http1.StatusInternalServerError, "no session")
		}
		n, _ := sess.Get("hits")
		hits, _ := n.(int)
		hits++
		sess.Set("hits", hits)
		return fmt.Sprintf("session %s: %d hits\n", sess.ID(), hits), nil

	case "/stats":
		stats := srv.Stats()
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, "%s %d\n", k, stats[k])
		}
		hdr.Set(http1.HeaderContentType, http1.MIMEType("txt"))
		return b.String(), nil
	}
	return nil, http1.NewStatusError(http1.StatusNotFound, req.Path())
}

// errorPage renders error bodies.
func errorPage(_ api.Server, _ *http1.Request, hdr *http1.ResponseHeader) (any, error) {
	hdr.Set(http1.HeaderContentType, http1.MIMEType("html"))
	return fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", hdr.Status(), http1.StatusText(hdr.Status())), nil
}
