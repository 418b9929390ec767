// Package workspace allocates and releases per-request scratch directories.
//
// Every conversion request gets its own directory named req-<uuid> under
// the scratch root. Release removes the input file, the output file and the
// directory exactly once, no matter how many times it is called.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gifbot/internal/logging"
	"gifbot/internal/metrics"

	"github.com/google/uuid"
)

const (
	// DirPrefix marks directories owned by the manager.
	DirPrefix = "req-"

	// OutputName is the file name of the produced animation.
	OutputName = "output.gif"

	dirPerm = 0o700
)

// Workspace is a scratch directory bound to one request.
type Workspace struct {
	ID         string
	Dir        string
	InputPath  string
	OutputPath string

	once sync.Once
}

// Manager hands out workspaces under a single root directory.
type Manager struct {
	root   string
	active atomic.Int64
}

// Usage describes how much of the scratch root is in use.
type Usage struct {
	Bytes   int64
	Entries int
}

// NewManager creates the root directory if it is missing.
func NewManager(root string) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("workspace root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the scratch root directory.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a fresh directory for one request. inputExt is appended
// to the input file name, e.g. ".mp4". Neither file is created.
func (m *Manager) Acquire(inputExt string) (*Workspace, error) {
	id := uuid.New().String()
	dir := filepath.Join(m.root, DirPrefix+id)

	if err := os.Mkdir(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", dir, err)
	}

	m.active.Add(1)
	metrics.WorkspacesActive.Inc()

	return &Workspace{
		ID:         id,
		Dir:        dir,
		InputPath:  filepath.Join(dir, "input"+sanitizeExt(inputExt)),
		OutputPath: filepath.Join(dir, OutputName),
	}, nil
}

// Release removes everything the workspace owns. It is safe to call with a
// nil or partially populated workspace and more than once; removal runs
// only on the first call. Errors are logged, never returned.
func (m *Manager) Release(ws *Workspace) {
	if ws == nil {
		return
	}
	ws.once.Do(func() {
		for _, path := range []string{ws.InputPath, ws.OutputPath} {
			removeIfExists(path, os.Remove)
		}
		removeIfExists(ws.Dir, os.RemoveAll)

		// Only workspaces handed out by Acquire are counted.
		if ws.Dir != "" && strings.HasPrefix(filepath.Base(ws.Dir), DirPrefix) {
			m.active.Add(-1)
			metrics.WorkspacesActive.Dec()
		}
	})
}

// Active returns the number of acquired workspaces not yet released.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Usage walks the scratch root and reports its size and the number of
// workspace directories in it.
func (m *Manager) Usage() (Usage, error) {
	var usage Usage

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return usage, err
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), DirPrefix) {
			usage.Entries++
		}
	}

	err = filepath.WalkDir(m.root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			// Workspaces come and go while we walk
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			usage.Bytes += info.Size()
		}
		return nil
	})
	return usage, err
}

// ScratchUsage adapts Usage to metrics.UsageProvider.
func (m *Manager) ScratchUsage() (int64, int, error) {
	u, err := m.Usage()
	return u.Bytes, u.Entries, err
}

// CleanStaleResult contains the outcome of a stale directory sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes workspace directories older than maxAge, typically
// left behind by a process that was killed mid-request. Directories that
// do not carry DirPrefix are never touched.
func (m *Manager) CleanStale(maxAge time.Duration) CleanStaleResult {
	result := CleanStaleResult{}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: m.root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), DirPrefix) {
			continue
		}

		dirPath := filepath.Join(m.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}

		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.Warn("Failed to remove stale workspace %s: %v", dirPath, err)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logging.Info("Removed stale workspace %s (age %v)", dirPath, time.Since(info.ModTime()).Round(time.Second))
	}

	return result
}

func removeIfExists(path string, remove func(string) error) {
	if path == "" {
		return
	}
	if _, err := os.Lstat(path); err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Failed to stat %s before removal: %v", path, err)
		}
		return
	}
	if err := remove(path); err != nil && !os.IsNotExist(err) {
		metrics.WorkspaceReleaseErrors.Inc()
		logging.Warn("Failed to remove %s: %v", path, err)
	}
}

// sanitizeExt keeps a leading-dot extension made of letters and digits.
func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	if len(ext) > 8 {
		return ""
	}
	return ext
}
