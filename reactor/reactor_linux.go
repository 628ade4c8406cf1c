//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based poller with an eventfd used to interrupt Wait.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Poller is a level-triggered readiness set over socket descriptors.
// Add, Remove and Wake may be called from any goroutine; Wait is meant to
// be driven by a single sweeper goroutine.
type Poller struct {
	epfd   int
	wakefd int
	raw    []unix.EpollEvent
	closed atomic.Bool
}

// NewPoller creates an epoll instance and its wake descriptor.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wake: %w", err)
	}
	return &Poller{epfd: epfd, wakefd: wakefd}, nil
}

// Add starts watching fd for input and peer shutdown.
func (p *Poller) Add(fd int) error {
	if p.closed.Load() {
		return ErrClosed
	}
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Remove stops watching fd. Descriptors that are not registered, or were
// already closed, are ignored.
func (p *Poller) Remove(fd int) error {
	if p.closed.Load() {
		return nil
	}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait blocks up to timeout (negative: forever) and stores ready sockets
// in events. A Wake ends the wait early with zero events.
func (p *Poller) Wait(events []Event, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if cap(p.raw) < len(events)+1 {
		p.raw = make([]unix.EpollEvent, len(events)+1)
	}
	raw := p.raw[:len(events)+1]

	ms := -1
	if timeout >= 0 {
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, raw, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		if p.closed.Load() {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	k := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}
		if k == len(events) {
			break
		}
		e := raw[i].Events
		events[k] = Event{
			Fd:       fd,
			Readable: e&unix.EPOLLIN != 0,
			Hangup:   e&(unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
		}
		k++
	}
	return k, nil
}

// Wake interrupts a concurrent Wait.
func (p *Poller) Wake() error {
	if p.closed.Load() {
		return nil
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(p.wakefd, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *Poller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakefd, buf[:])
}

// Close releases the epoll and eventfd descriptors.
func (p *Poller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(unix.Close(p.epfd), unix.Close(p.wakefd))
}

// Probe checks fd without blocking: whether bytes are pending, the peer
// has closed, or neither.
func Probe(fd int) (Readiness, error) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN | unix.POLLRDHUP}}
	for {
		n, err := unix.Poll(pfd, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return NotReady, fmt.Errorf("poll: %w", err)
		}
		if n == 0 || pfd[0].Revents == 0 {
			return NotReady, nil
		}
		break
	}
	if pfd[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		return PeerClosed, nil
	}
	pending, err := Pending(fd)
	if err != nil {
		return PeerClosed, err
	}
	if pending > 0 {
		return DataReady, nil
	}
	return PeerClosed, nil
}

// Pending returns the number of bytes queued in the socket receive buffer.
func Pending(fd int) (int, error) {
	n, err := unix.IoctlGetInt(fd, unix.SIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("ioctl SIOCINQ: %w", err)
	}
	return n, nil
}
