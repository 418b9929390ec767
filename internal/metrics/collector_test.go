package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockUsageProvider struct {
	mu    sync.Mutex
	bytes int64
	count int
	err   error
	calls int
}

func (m *mockUsageProvider) ScratchUsage() (int64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.bytes, m.count, m.err
}

func (m *mockUsageProvider) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestCollectorCollect(t *testing.T) {
	provider := &mockUsageProvider{bytes: 4096, count: 3}
	c := NewCollector(provider, time.Hour)

	c.collect()

	if got := testutil.ToFloat64(ScratchBytes); got != 4096 {
		t.Errorf("Expected ScratchBytes=4096, got %v", got)
	}
	if got := testutil.ToFloat64(ScratchEntries); got != 3 {
		t.Errorf("Expected ScratchEntries=3, got %v", got)
	}
}

func TestCollectorKeepsLastValueOnError(t *testing.T) {
	provider := &mockUsageProvider{bytes: 100, count: 1}
	c := NewCollector(provider, time.Hour)
	c.collect()

	provider.mu.Lock()
	provider.bytes = 999
	provider.err = errors.New("walk failed")
	provider.mu.Unlock()
	c.collect()

	if got := testutil.ToFloat64(ScratchBytes); got != 100 {
		t.Errorf("Expected ScratchBytes to stay at 100, got %v", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	c.collect() // must not panic
}

func TestCollectorStartStop(t *testing.T) {
	provider := &mockUsageProvider{}
	c := NewCollector(provider, 10*time.Millisecond)
	c.Start()

	deadline := time.Now().Add(time.Second)
	for provider.getCalls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
	c.Stop()

	if provider.getCalls() < 2 {
		t.Errorf("Expected at least 2 collections, got %d", provider.getCalls())
	}
}
