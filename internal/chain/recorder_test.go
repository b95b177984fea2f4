package chain_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtrail-project/hashtrail/internal/chain"
	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/metrics"
	"github.com/hashtrail-project/hashtrail/pkg/model"
	"github.com/hashtrail-project/hashtrail/pkg/webhook"
)

func TestRecorder_FreshChainIsValid(t *testing.T) {
	rec := chain.NewRecorder()

	assert.Equal(t, 1, rec.Chain().Len())
	valid, at := rec.ValidateChain().Verdict()
	assert.True(t, valid)
	assert.Nil(t, at)
}

func TestRecorder_RecordOperation(t *testing.T) {
	rec := chain.NewRecorder()
	ctx := context.Background()
	digest := string(integrity.Digest([]byte("Hello World")))

	b1, err := rec.RecordOperation(ctx, model.OpHash, "hello.txt", digest)
	require.NoError(t, err)
	b2, err := rec.RecordOperation(ctx, model.OpVerification, "hello.txt", model.ResultValid)
	require.NoError(t, err)

	assert.Equal(t, 1, b1.Index)
	assert.Equal(t, 2, b2.Index)
	assert.Equal(t, b1.BlockHash, b2.PreviousHash)
	assert.Equal(t, 3, rec.Chain().Len())
	assert.True(t, rec.ValidateChain().Valid)
}

func TestRecorder_RecordVerification(t *testing.T) {
	rec := chain.NewRecorder()
	ctx := context.Background()
	digest := integrity.Digest([]byte("Hello World"))

	ok, err := rec.RecordVerification(ctx, "hello.txt", digest, strings.ToUpper(string(digest)))
	require.NoError(t, err)
	assert.Equal(t, model.ResultValid, ok.Result)
	assert.Equal(t, digest, ok.CurrentHash)

	bad, err := rec.RecordVerification(ctx, "hello.txt", digest, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, model.OpVerification, bad.Operation)
	assert.Equal(t, model.ResultInvalid, bad.Result)
	assert.Equal(t, "deadbeef", bad.StoredHash)
	assert.Equal(t, integrity.BlockHash(integrity.SHA256, bad), bad.BlockHash)

	tail, _ := rec.Chain().Tail()
	assert.Equal(t, bad, tail)
	assert.True(t, rec.ValidateChain().Valid)
}

func TestRecorder_RejectsUnknownKinds(t *testing.T) {
	rec := chain.NewRecorder()

	for _, kind := range []model.Operation{model.OpGenesis, "DELETE", ""} {
		_, err := rec.RecordOperation(context.Background(), kind, "f", "r")
		assert.ErrorIs(t, err, errclass.ErrMalformedInput, "kind %q", kind)
	}
	assert.Equal(t, 1, rec.Chain().Len())
}

func TestRecorder_RejectsUnknownVerificationResult(t *testing.T) {
	rec := chain.NewRecorder()

	_, err := rec.RecordOperation(context.Background(), model.OpVerification, "f", "maybe")
	assert.ErrorIs(t, err, errclass.ErrMalformedInput)
}

func TestRecorder_FutureTimestampLeavesChainUnchanged(t *testing.T) {
	wall := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := chain.NewFactory(
		chain.WithClock(func() time.Time { return wall.Add(time.Hour) }),
		chain.WithWallClock(func() time.Time { return wall }),
	)
	reg := metrics.NewRegistry()
	rec := chain.NewRecorder(chain.WithFactory(f), chain.WithMetrics(reg))

	_, err := rec.RecordOperation(context.Background(), model.OpHash, "f", "r")
	assert.ErrorIs(t, err, errclass.ErrInvalidTimestamp)
	assert.Equal(t, 1, rec.Chain().Len())

	n, err := testutil.GatherAndCount(reg.Gatherer(), "hashtrail_chain_append_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Concurrent recorders must never produce duplicate indices or broken links.
func TestRecorder_ConcurrentAppends(t *testing.T) {
	rec := chain.NewRecorder()
	const workers, perWorker = 16, 25

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				name := fmt.Sprintf("w%d-%d.bin", w, i)
				if _, err := rec.RecordOperation(context.Background(), model.OpHash, name, string(integrity.Digest([]byte(name)))); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("record: %v", err)
	}

	snap := rec.Chain()
	require.Equal(t, workers*perWorker+1, snap.Len())
	for i, b := range snap.Blocks() {
		assert.Equal(t, i, b.Index)
	}
	assert.True(t, rec.ValidateChain().Valid)
}

func tamperedLog(t *testing.T) *chain.Log {
	t.Helper()
	f := chain.NewFactory()
	l := chain.NewLog(f.Genesis())
	for i := 0; i < 3; i++ {
		_, err := l.AppendFunc(func(tail *model.Block) (model.Block, error) {
			return f.Build(model.OpHash, fmt.Sprintf("f%d", i), "r", tail)
		})
		require.NoError(t, err)
	}
	blocks := l.Snapshot().Blocks()
	blocks[2].Result = "edited"
	return chain.NewLogFromBlocks(blocks)
}

func TestRecorder_ValidateChainDetectsTampering(t *testing.T) {
	reg := metrics.NewRegistry()
	rec := chain.NewRecorder(chain.WithLog(tamperedLog(t)), chain.WithMetrics(reg))

	res := rec.ValidateChain()
	valid, at := res.Verdict()
	assert.False(t, valid)
	require.NotNil(t, at)
	assert.Equal(t, 2, *at)
	assert.Equal(t, float64(0), gauge(t, reg, "hashtrail_chain_valid"))
}

func gauge(t *testing.T, reg *metrics.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestRecorder_WebhookOnInvalidTransition(t *testing.T) {
	var mu sync.Mutex
	var events []webhook.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev webhook.Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	defer srv.Close()

	hooks := webhook.NewClient(&webhook.Config{
		Enabled:        true,
		AsyncQueueSize: 10,
		Hooks:          []webhook.HookConfig{{URL: srv.URL, Events: []webhook.EventType{"*"}, Enabled: true}},
	})
	rec := chain.NewRecorder(chain.WithLog(tamperedLog(t)), chain.WithWebhooks(hooks))

	rec.ValidateChain()
	rec.ValidateChain()
	_, err := rec.RecordOperation(context.Background(), model.OpHash, "late.txt", "r")
	require.NoError(t, err)
	require.NoError(t, hooks.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2, "invalid fires once per transition, plus one append")
	assert.Equal(t, webhook.EventChainInvalid, events[0].Event)
	require.NotNil(t, events[0].Index)
	assert.Equal(t, 2, *events[0].Index)
	assert.Equal(t, webhook.EventBlockAppended, events[1].Event)
	assert.Equal(t, "late.txt", events[1].Filename)
}
