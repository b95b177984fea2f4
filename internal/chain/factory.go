// Package chain builds, stores and records blocks of the audit chain.
package chain

import (
	"time"

	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// DefaultFutureTolerance is how far a block timestamp may run ahead of the wall clock.
const DefaultFutureTolerance = 10 * time.Minute

// Factory builds blocks that link onto a chain tail.
type Factory struct {
	hasher    integrity.Hasher
	clock     func() time.Time
	wall      func() time.Time
	tolerance time.Duration
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithHasher sets the header hash algorithm.
func WithHasher(h integrity.Hasher) FactoryOption {
	return func(f *Factory) { f.hasher = h }
}

// WithClock sets the source of block timestamps.
func WithClock(clock func() time.Time) FactoryOption {
	return func(f *Factory) { f.clock = clock }
}

// WithWallClock sets the reference clock used by the future-timestamp check.
func WithWallClock(wall func() time.Time) FactoryOption {
	return func(f *Factory) { f.wall = wall }
}

// WithTolerance sets the future-timestamp tolerance.
func WithTolerance(d time.Duration) FactoryOption {
	return func(f *Factory) { f.tolerance = d }
}

// NewFactory creates a factory using SHA-256 and the system clock.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		hasher:    integrity.SHA256,
		clock:     time.Now,
		wall:      time.Now,
		tolerance: DefaultFutureTolerance,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Hasher returns the header hash algorithm.
func (f *Factory) Hasher() integrity.Hasher {
	return f.hasher
}

// Genesis returns the fixed first block of every chain.
func (f *Factory) Genesis() model.Block {
	b := model.Block{
		Index:        0,
		PreviousHash: model.ZeroHash,
		Timestamp:    model.GenesisTimestamp,
		Operation:    model.OpGenesis,
	}
	b.BlockHash = integrity.BlockHash(f.hasher, b)
	return b
}

// Build creates the block that follows tail. A nil tail builds index 0 on the
// all-zero hash. The returned block is complete or an error is returned.
func (f *Factory) Build(op model.Operation, filename, result string, tail *model.Block) (model.Block, error) {
	b := model.Block{
		Index:        0,
		PreviousHash: model.ZeroHash,
		Timestamp:    f.clock().UTC().Format(model.TimestampLayout),
		Operation:    op,
		Filename:     filename,
		Result:       result,
	}
	if tail != nil {
		b.Index = tail.Index + 1
		b.PreviousHash = tail.BlockHash
	}

	if err := f.CheckTimestamp(b.Timestamp); err != nil {
		return model.Block{}, err
	}

	b.BlockHash = integrity.BlockHash(f.hasher, b)
	return b, nil
}

// CheckTimestamp rejects timestamps that cannot be parsed or that lie more
// than the tolerance ahead of the wall clock.
func (f *Factory) CheckTimestamp(ts string) error {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return errclass.ErrInvalidTimestamp.WithMessagef("unparsable timestamp %q", ts)
	}
	now := f.wall().UTC()
	if t.Sub(now) > f.tolerance {
		return errclass.ErrInvalidTimestamp.WithMessagef("timestamp %s is more than %s ahead of %s",
			ts, f.tolerance, now.Format(time.RFC3339))
	}
	return nil
}
