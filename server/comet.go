// File: server/comet.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deferred (comet) completions. A waiting connection is indexed twice:
// by its wait channel and in a deadline heap. Both indexes are updated
// under one lock, so whichever trigger removes a wait first completes it.

package server

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/http1"
	"github.com/momentics/hioload-httpd/internal/concurrency"
)

type cometWait struct {
	entry *connEntry
	comet *api.Comet
	timer *concurrency.Timer[*cometWait]
	start time.Time
}

type cometSet struct {
	mu        sync.Mutex
	byChan    map[<-chan struct{}][]*cometWait
	deadlines concurrency.DeadlineQueue[*cometWait]
	wake      chan struct{}
}

func newCometSet() *cometSet {
	return &cometSet{
		byChan: make(map[<-chan struct{}][]*cometWait),
		wake:   make(chan struct{}, 1),
	}
}

func (cs *cometSet) add(w *cometWait) {
	cs.mu.Lock()
	if w.comet.Wait != nil {
		cs.byChan[w.comet.Wait] = append(cs.byChan[w.comet.Wait], w)
	}
	w.timer = cs.deadlines.Push(w, w.comet.Deadline)
	cs.mu.Unlock()
	cs.notify()
}

// notify interrupts the sweeper so it picks up new channels and deadlines.
func (cs *cometSet) notify() {
	select {
	case cs.wake <- struct{}{}:
	default:
	}
}

// snapshot returns the distinct wait channels and the nearest deadline.
func (cs *cometSet) snapshot() ([]<-chan struct{}, time.Time, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	chans := make([]<-chan struct{}, 0, len(cs.byChan))
	for ch := range cs.byChan {
		chans = append(chans, ch)
	}
	next, ok := cs.deadlines.Next()
	return chans, next, ok
}

// takeSignalled removes every wait on ch.
func (cs *cometSet) takeSignalled(ch <-chan struct{}) []*cometWait {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	ws := cs.byChan[ch]
	delete(cs.byChan, ch)
	for _, w := range ws {
		cs.deadlines.Remove(w.timer)
	}
	return ws
}

// takeExpired removes every wait whose deadline is not after now.
func (cs *cometSet) takeExpired(now time.Time) []*cometWait {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	ws := cs.deadlines.PopExpired(now)
	for _, w := range ws {
		cs.unlink(w)
	}
	return ws
}

func (cs *cometSet) unlink(w *cometWait) {
	ch := w.comet.Wait
	if ch == nil {
		return
	}
	list := cs.byChan[ch]
	for i, x := range list {
		if x == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(cs.byChan, ch)
	} else {
		cs.byChan[ch] = list
	}
}

func (cs *cometSet) len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.deadlines.Len()
}

func (cs *cometSet) drain() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.deadlines.Drain()
	cs.byChan = make(map[<-chan struct{}][]*cometWait)
}

// suspend parks e until c is signalled or expires.
func (s *Server) suspend(e *connEntry, req *http1.Request, hdr *http1.ResponseHeader, c *api.Comet) error {
	if c.Handler == nil {
		return api.ErrInvalidComet
	}
	if c.Request == nil {
		c.Request = req
	}
	if c.Response == nil {
		c.Response = hdr
	}
	if !s.reg.move(e, stateActive, stateComet) {
		return nil
	}
	s.comets.add(&cometWait{entry: e, comet: c, start: time.Now()})
	s.logger.Debug("comet suspended", "conn", e.id, "deadline", c.Deadline)
	return nil
}

// cometLoop waits on the union of the registered channels, bounded by
// CometSweepInterval and the nearest deadline.
func (s *Server) cometLoop() {
	defer s.wg.Done()
	s.pin(slotComet, "comet")
	cases := make([]reflect.SelectCase, 0, 16)

	for !s.closed.Load() {
		chans, next, ok := s.comets.snapshot()
		wait := s.cfg.CometSweepInterval
		if ok {
			if d := time.Until(next); d < wait {
				wait = max(d, 0)
			}
		}
		timer := time.NewTimer(wait)

		cases = append(cases[:0],
			reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.done)},
			reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.comets.wake)},
			reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)},
		)
		for _, ch := range chans {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
		}
		chosen, _, _ := reflect.Select(cases)
		timer.Stop()
		if chosen == 0 {
			return
		}
		if chosen >= 3 {
			for _, w := range s.comets.takeSignalled(chans[chosen-3]) {
				s.completeComet(w, false)
			}
		}
		for _, w := range s.comets.takeExpired(time.Now()) {
			s.completeComet(w, true)
		}
	}
}

// completeComet hands a removed wait to a worker. Removal from the set
// happened under its lock, so this runs once per wait.
func (s *Server) completeComet(w *cometWait, timedOut bool) {
	e := w.entry
	if !s.reg.move(e, stateComet, stateActive) {
		return
	}
	err := s.exec.Submit(func() { s.runComet(w, timedOut) })
	if err != nil {
		s.metrics.TaskRejected(context.Background())
		s.logger.Warn("comet completion dropped", "conn", e.id, "err", err)
		s.closeEntry(e)
	}
}

func (s *Server) runComet(w *cometWait, timedOut bool) {
	c := w.comet
	req := c.Request
	s.metrics.CometCompleted(req.Context(), timedOut)
	s.logger.Debug("comet completed", "conn", w.entry.id, "timed_out", timedOut)

	res, err := s.invokeComet(c, timedOut)
	s.respond(w.entry, req, c.Response, res, err, w.start)
}

func (s *Server) invokeComet(c *api.Comet, timedOut bool) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("comet handler panic", "path", c.Request.Path(), "panic", r)
			res, err = nil, http1.NewStatusError(http1.StatusInternalServerError, "comet handler panic")
		}
	}()
	return c.Handler(c, timedOut)
}
