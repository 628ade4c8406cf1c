// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_stub.go) guarded by build tags.

package affinity

import "runtime"

// SetAffinity pins the calling OS thread to a given logical CPU.
// On unsupported platforms returns an error.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// Pin locks the calling goroutine to its OS thread and pins that thread
// to cpuID. The goroutine must stay locked until it exits, so the runtime
// discards the pinned thread instead of reusing it. On failure the thread
// is unlocked again.
func Pin(cpuID int) error {
	runtime.LockOSThread()
	if err := SetAffinity(cpuID); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}
