package chain

import (
	"context"
	"time"
)

// Monitor revalidates the chain on a fixed interval so tampering is noticed
// without a client asking.
type Monitor struct {
	rec      *Recorder
	interval time.Duration
}

// NewMonitor creates a monitor over rec.
func NewMonitor(rec *Recorder, interval time.Duration) *Monitor {
	return &Monitor{rec: rec, interval: interval}
}

// Run validates once immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.rec.ValidateChain()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.rec.ValidateChain()
		}
	}
}
