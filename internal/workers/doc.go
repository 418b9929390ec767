/*
Package workers sizes concurrency limits in containerized environments.

When running in a container the number of usable CPUs may be limited by
cgroup constraints. Go 1.19+ sets GOMAXPROCS from those limits, while
runtime.NumCPU() still returns the host count:

	// Wrong: returns 64 (host CPUs) on a 2-CPU pod
	n := runtime.NumCPU()

	// Correct: returns 2
	n := runtime.GOMAXPROCS(0)

# Usage

Each conversion runs ffmpeg, which is CPU-bound, so the bot bounds
in-flight conversions with ForCPU:

	limit := workers.ForCPU(4) // one per CPU, at most 4

Count takes an explicit multiplier for other workloads:

	n := workers.Count(2.0, 16) // two per CPU, at most 16

Operators override the result through MAX_CONCURRENT_CONVERSIONS, which is
read by the startup package, not here.

All functions are safe for concurrent use.
*/
package workers
