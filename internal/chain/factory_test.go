package chain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtrail-project/hashtrail/internal/chain"
	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFactory_Genesis(t *testing.T) {
	g := chain.NewFactory().Genesis()

	assert.Equal(t, 0, g.Index)
	assert.Equal(t, model.ZeroHash, g.PreviousHash)
	assert.Equal(t, "2023-01-01T00:00:00Z", g.Timestamp)
	assert.Equal(t, model.OpGenesis, g.Operation)
	assert.Empty(t, g.Filename)
	assert.Empty(t, g.Result)
	assert.Equal(t, integrity.HeaderHash(integrity.SHA256, 0, model.ZeroHash, "2023-01-01T00:00:00Z", model.OpGenesis, "", ""), g.BlockHash)
	assert.Equal(t, g, chain.NewFactory().Genesis(), "genesis is deterministic")
}

func TestFactory_BuildLinksOntoTail(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	f := chain.NewFactory(chain.WithClock(fixedClock(now)), chain.WithWallClock(fixedClock(now)))
	g := f.Genesis()

	b, err := f.Build(model.OpHash, "report.pdf", "abc", &g)
	require.NoError(t, err)

	assert.Equal(t, 1, b.Index)
	assert.Equal(t, g.BlockHash, b.PreviousHash)
	assert.Equal(t, "2024-05-06T07:08:09.123456Z", b.Timestamp)
	assert.Equal(t, model.OpHash, b.Operation)
	assert.Equal(t, "report.pdf", b.Filename)
	assert.Equal(t, "abc", b.Result)
	assert.Equal(t, integrity.BlockHash(integrity.SHA256, b), b.BlockHash)
}

func TestFactory_BuildConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2024, 1, 1, 12, 0, 0, 0, loc)
	f := chain.NewFactory(chain.WithClock(fixedClock(local)), chain.WithWallClock(fixedClock(local)))

	b, err := f.Build(model.OpHash, "f", "r", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T10:00:00.000000Z", b.Timestamp)
}

func TestFactory_BuildWithoutTail(t *testing.T) {
	b, err := chain.NewFactory().Build(model.OpHash, "f", "r", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Index)
	assert.Equal(t, model.ZeroHash, b.PreviousHash)
}

func TestFactory_RejectsFutureTimestamp(t *testing.T) {
	wall := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := chain.NewFactory().Genesis()

	skewed := chain.NewFactory(
		chain.WithClock(fixedClock(wall.Add(11*time.Minute))),
		chain.WithWallClock(fixedClock(wall)),
	)
	_, err := skewed.Build(model.OpHash, "f", "r", &g)
	assert.ErrorIs(t, err, errclass.ErrInvalidTimestamp)

	within := chain.NewFactory(
		chain.WithClock(fixedClock(wall.Add(9*time.Minute))),
		chain.WithWallClock(fixedClock(wall)),
	)
	_, err = within.Build(model.OpHash, "f", "r", &g)
	assert.NoError(t, err)
}

func TestFactory_CheckTimestamp(t *testing.T) {
	wall := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := chain.NewFactory(chain.WithWallClock(fixedClock(wall)), chain.WithTolerance(time.Minute))

	assert.NoError(t, f.CheckTimestamp("2023-12-31T23:00:00.000000Z"))
	assert.NoError(t, f.CheckTimestamp("2024-01-01T00:00:59Z"))
	assert.ErrorIs(t, f.CheckTimestamp("2024-01-01T00:02:00Z"), errclass.ErrInvalidTimestamp)
	assert.ErrorIs(t, f.CheckTimestamp("yesterday"), errclass.ErrInvalidTimestamp)
}
