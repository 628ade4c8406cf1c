//go:build linux

package affinity_test

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/affinity"
)

func firstAllowedCPU(t *testing.T) int {
	t.Helper()
	var allowed unix.CPUSet
	if err := unix.SchedGetaffinity(0, &allowed); err != nil {
		t.Skipf("sched_getaffinity: %v", err)
	}
	for i := 0; i < 1024; i++ {
		if allowed.IsSet(i) {
			return i
		}
	}
	t.Skip("no usable cpu")
	return -1
}

// Each test pins inside its own goroutine; the locked thread is discarded
// when the goroutine exits.
func TestPinRestrictsThread(t *testing.T) {
	cpu := firstAllowedCPU(t)
	type result struct {
		count int
		set   bool
		err   error
	}
	done := make(chan result, 1)
	go func() {
		if err := affinity.Pin(cpu); err != nil {
			done <- result{err: err}
			return
		}
		var got unix.CPUSet
		err := unix.SchedGetaffinity(0, &got)
		done <- result{got.Count(), got.IsSet(cpu), err}
	}()
	r := <-done
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.count != 1 || !r.set {
		t.Fatalf("mask has %d cpus, cpu %d set: %v", r.count, cpu, r.set)
	}
}

func TestPinRejectsInvalidCPU(t *testing.T) {
	var allowed unix.CPUSet
	if err := unix.SchedGetaffinity(0, &allowed); err != nil {
		t.Skipf("sched_getaffinity: %v", err)
	}
	if allowed.IsSet(1023) {
		t.Skip("cpu 1023 is usable here")
	}
	done := make(chan error, 1)
	go func() { done <- affinity.Pin(1023) }()
	if err := <-done; err == nil {
		t.Fatal("pinning to an unavailable cpu succeeded")
	}
}
