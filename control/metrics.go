// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Server telemetry. Every event is counted twice: on an OpenTelemetry
// instrument for export, and on an in-process counter for Stats.

package control

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope of all server instruments.
const ScopeName = "github.com/momentics/hioload-httpd"

// SizeFunc reports the current number of connections per state.
type SizeFunc func() map[string]int64

// Metrics records server events.
type Metrics struct {
	accepted metric.Int64Counter
	closed   metric.Int64Counter
	requests metric.Int64Counter
	comets   metric.Int64Counter
	frames   metric.Int64Counter
	rejected metric.Int64Counter
	duration metric.Float64Histogram
	reg      metric.Registration

	nAccepted      atomic.Int64
	nClosed        atomic.Int64
	nRequests      atomic.Int64
	nErrors        atomic.Int64
	nCometSignal   atomic.Int64
	nCometDeadline atomic.Int64
	nFrames        atomic.Int64
	nRejected      atomic.Int64
}

// NewMetrics creates the instruments on mp. sizes, if non-nil, backs an
// observable gauge of connections per state.
func NewMetrics(mp metric.MeterProvider, sizes SizeFunc) (*Metrics, error) {
	meter := mp.Meter(ScopeName)
	m := &Metrics{}
	var err error

	if m.accepted, err = meter.Int64Counter("hioload.connections.accepted",
		metric.WithDescription("Accepted TCP connections"),
		metric.WithUnit("{connection}")); err != nil {
		return nil, err
	}
	if m.closed, err = meter.Int64Counter("hioload.connections.closed",
		metric.WithDescription("Closed TCP connections"),
		metric.WithUnit("{connection}")); err != nil {
		return nil, err
	}
	if m.requests, err = meter.Int64Counter("hioload.requests",
		metric.WithDescription("Completed HTTP requests by status"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.comets, err = meter.Int64Counter("hioload.comet.completions",
		metric.WithDescription("Completed deferred requests by trigger"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.frames, err = meter.Int64Counter("hioload.websocket.frames",
		metric.WithDescription("Inbound WebSocket frames by opcode"),
		metric.WithUnit("{frame}")); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter("hioload.tasks.rejected",
		metric.WithDescription("Connections dropped because the worker queue refused them"),
		metric.WithUnit("{task}")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("hioload.request.duration",
		metric.WithDescription("Time from parsed request to finalized response"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	if sizes != nil {
		gauge, err := meter.Int64ObservableGauge("hioload.connections.state",
			metric.WithDescription("Connections currently in each state"),
			metric.WithUnit("{connection}"))
		if err != nil {
			return nil, err
		}
		m.reg, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			for state, n := range sizes() {
				o.ObserveInt64(gauge, n, metric.WithAttributes(attribute.String("state", state)))
			}
			return nil
		}, gauge)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ConnAccepted records an accepted connection.
func (m *Metrics) ConnAccepted(ctx context.Context) {
	m.nAccepted.Add(1)
	m.accepted.Add(ctx, 1)
}

// ConnClosed records a closed connection.
func (m *Metrics) ConnClosed(ctx context.Context) {
	m.nClosed.Add(1)
	m.closed.Add(ctx, 1)
}

// Request records a finalized response.
func (m *Metrics) Request(ctx context.Context, method string, status int, elapsed time.Duration) {
	m.nRequests.Add(1)
	if status >= 500 {
		m.nErrors.Add(1)
	}
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.response.status_code", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// CometCompleted records a deferred completion.
func (m *Metrics) CometCompleted(ctx context.Context, timedOut bool) {
	trigger := "signal"
	if timedOut {
		trigger = "deadline"
		m.nCometDeadline.Add(1)
	} else {
		m.nCometSignal.Add(1)
	}
	m.comets.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// Frame records an inbound WebSocket frame.
func (m *Metrics) Frame(ctx context.Context, opcode string) {
	m.nFrames.Add(1)
	m.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("opcode", opcode)))
}

// TaskRejected records a connection dropped by the executor.
func (m *Metrics) TaskRejected(ctx context.Context) {
	m.nRejected.Add(1)
	m.rejected.Add(ctx, 1)
}

// Snapshot returns the in-process counters.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"connections_accepted": m.nAccepted.Load(),
		"connections_closed":   m.nClosed.Load(),
		"requests":             m.nRequests.Load(),
		"requests_5xx":         m.nErrors.Load(),
		"comet_signalled":      m.nCometSignal.Load(),
		"comet_timed_out":      m.nCometDeadline.Load(),
		"websocket_frames":     m.nFrames.Load(),
		"tasks_rejected":       m.nRejected.Load(),
	}
}

// Close unregisters the gauge callback.
func (m *Metrics) Close() error {
	if m.reg == nil {
		return nil
	}
	return m.reg.Unregister()
}
