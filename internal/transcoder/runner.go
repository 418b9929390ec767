package transcoder

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// CommandResult holds the captured output of one external command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// execRunner runs commands with os/exec and tracks them until they exit so
// Cleanup can kill anything still running at shutdown.
type execRunner struct {
	mu        sync.Mutex
	processes map[uint64]*exec.Cmd
	next      atomic.Uint64
}

func newExecRunner() *execRunner {
	return &execRunner{processes: make(map[uint64]*exec.Cmd)}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return CommandResult{ExitCode: -1}, err
	}

	id := r.next.Add(1)
	r.mu.Lock()
	r.processes[id] = cmd
	r.mu.Unlock()

	err := cmd.Wait()

	r.mu.Lock()
	delete(r.processes, id)
	r.mu.Unlock()

	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		result.ExitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		}
	}
	return result, err
}

// killAll kills every tracked process and returns how many were signalled.
func (r *execRunner) killAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	killed := 0
	for _, cmd := range r.processes {
		if cmd.Process != nil && cmd.Process.Kill() == nil {
			killed++
		}
	}
	return killed
}

func (r *execRunner) running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processes)
}
