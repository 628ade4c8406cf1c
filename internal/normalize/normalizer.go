// File: internal/normalize/normalizer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU index normalization. Affinity call sites validate requested CPUs
// against the processor count before pinning a thread.
//
// Example usage:
//
//   cpu, ok := normalize.CPUIndex(requested, runtime.NumCPU())

package normalize

// CPUIndex validates a CPU index against maxCPUs.
//   - If requested < 0, or >= maxCPUs, returns (0, false).
//   - If maxCPUs < 1, returns (0, false).
func CPUIndex(requested int, maxCPUs int) (int, bool) {
	if maxCPUs < 1 || requested < 0 || requested >= maxCPUs {
		return 0, false
	}
	return requested, true
}

// CPUSet filters requested against maxCPUs, keeping the order and
// dropping duplicates. The second result lists the rejected indices.
func CPUSet(requested []int, maxCPUs int) (valid, rejected []int) {
	seen := make(map[int]bool, len(requested))
	for _, r := range requested {
		cpu, ok := CPUIndex(r, maxCPUs)
		if !ok {
			rejected = append(rejected, r)
			continue
		}
		if seen[cpu] {
			continue
		}
		seen[cpu] = true
		valid = append(valid, cpu)
	}
	return valid, rejected
}
