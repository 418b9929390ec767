// Package memory controls the Go runtime's memory limit in containers and
// holds back new conversions while the heap is under pressure.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before significant allocations:
//
//   - GOMEMLIMIT: Standard Go environment variable. If set, it wins.
//   - MEMORY_LIMIT: Container memory limit in bytes, typically from the
//     Kubernetes Downward API.
//   - MEMORY_RATIO: Share of MEMORY_LIMIT given to the Go heap, between 0.0
//     and 1.0 (default 0.6). ffmpeg and libvips allocate outside the Go heap,
//     so the remainder is reserved for them.
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//
// # Admission Backpressure
//
// A [Monitor] samples heap usage. Above the critical water mark it pauses;
// [Monitor.Wait] then blocks new conversions until usage falls below the
// high water mark:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	if err := monitor.Wait(ctx); err != nil {
//	    return err
//	}
//	// ... start the conversion
//
// Without a memory limit the monitor never pauses.
package memory
