package metrics

import (
	"sync"
	"time"

	"gifbot/internal/logging"
)

// UsageProvider reports how much scratch storage is in use.
type UsageProvider interface {
	ScratchUsage() (bytes int64, entries int, err error)
}

// Collector periodically samples scratch usage into gauges.
type Collector struct {
	provider UsageProvider
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(provider UsageProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	bytes, entries, err := c.provider.ScratchUsage()
	if err != nil {
		logging.Warn("Failed to sample scratch usage: %v", err)
		return
	}

	ScratchBytes.Set(float64(bytes))
	ScratchEntries.Set(float64(entries))

	logging.Debug("Metrics collected: scratch=%d bytes, workspaces=%d", bytes, entries)
}
