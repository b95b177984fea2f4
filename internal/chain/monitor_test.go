package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtrail-project/hashtrail/internal/chain"
	"github.com/hashtrail-project/hashtrail/pkg/metrics"
)

func TestMonitor_RunsUntilCancelled(t *testing.T) {
	reg := metrics.NewRegistry()
	rec := chain.NewRecorder(chain.WithMetrics(reg))
	m := chain.NewMonitor(rec, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := m.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	runs, err := testutil.GatherAndCount(reg.Gatherer(), "hashtrail_chain_validation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, runs, "one histogram series")
	assert.Equal(t, float64(1), gauge(t, reg, "hashtrail_chain_valid"))
}

func TestMonitor_FlagsTamperedChain(t *testing.T) {
	reg := metrics.NewRegistry()
	rec := chain.NewRecorder(chain.WithLog(tamperedLog(t)), chain.WithMetrics(reg))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = chain.NewMonitor(rec, time.Hour).Run(ctx)

	assert.Equal(t, float64(0), gauge(t, reg, "hashtrail_chain_valid"))
}
