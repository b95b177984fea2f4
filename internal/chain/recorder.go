package chain

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/internal/verify"
	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/logging"
	"github.com/hashtrail-project/hashtrail/pkg/metrics"
	"github.com/hashtrail-project/hashtrail/pkg/model"
	"github.com/hashtrail-project/hashtrail/pkg/tracing"
	"github.com/hashtrail-project/hashtrail/pkg/webhook"
)

// Recorder is the entry point for recording completed operations.
type Recorder struct {
	factory   *Factory
	log       *Log
	validator *verify.Validator
	metrics   *metrics.Registry
	hooks     *webhook.Client
	logger    *logging.Logger

	verdictMu sync.Mutex
	lastValid *bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithFactory sets the block factory.
func WithFactory(f *Factory) Option {
	return func(r *Recorder) { r.factory = f }
}

// WithLog records onto an existing log instead of a fresh genesis-only one.
func WithLog(l *Log) Option {
	return func(r *Recorder) { r.log = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithWebhooks sets the webhook client.
func WithWebhooks(c *webhook.Client) Option {
	return func(r *Recorder) { r.hooks = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder creates a recorder over a chain seeded with the genesis block.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{}
	for _, opt := range opts {
		opt(r)
	}
	if r.factory == nil {
		r.factory = NewFactory()
	}
	if r.log == nil {
		r.log = NewLog(r.factory.Genesis())
	}
	if r.logger == nil {
		r.logger = logging.WithFields(map[string]any{"component": "chain"})
	}
	r.validator = verify.NewValidator(r.factory.Hasher())
	r.metrics.SetChainLength(r.log.Len())
	return r
}

// RecordOperation appends a block for a completed HASH or VERIFICATION
// operation and returns it.
func (r *Recorder) RecordOperation(ctx context.Context, kind model.Operation, filename, result string) (model.Block, error) {
	return r.record(ctx, kind, filename, result, nil)
}

// RecordVerification compares current against stored and appends a
// VERIFICATION block holding the outcome and both digests.
func (r *Recorder) RecordVerification(ctx context.Context, filename string, current model.HashValue, stored string) (model.Block, error) {
	result := model.ResultInvalid
	if integrity.Equal(current, model.HashValue(stored)) {
		result = model.ResultValid
	}
	return r.record(ctx, model.OpVerification, filename, result, func(b *model.Block) {
		b.StoredHash = stored
		b.CurrentHash = current
	})
}

// record builds and appends a block. annotate may set fields outside the
// header hash.
func (r *Recorder) record(ctx context.Context, kind model.Operation, filename, result string, annotate func(*model.Block)) (model.Block, error) {
	_, span := tracing.Tracer().Start(ctx, "chain.RecordOperation")
	defer span.End()
	span.SetAttributes(attribute.String("operation", string(kind)))

	if !kind.Recordable() {
		err := errclass.ErrMalformedInput.WithMessagef("operation %q cannot be recorded", kind)
		r.fail(span, err)
		return model.Block{}, err
	}
	if kind == model.OpVerification && result != model.ResultValid && result != model.ResultInvalid {
		err := errclass.ErrMalformedInput.WithMessagef("verification result must be %q or %q", model.ResultValid, model.ResultInvalid)
		r.fail(span, err)
		return model.Block{}, err
	}

	b, err := r.log.AppendFunc(func(tail *model.Block) (model.Block, error) {
		b, err := r.factory.Build(kind, filename, result, tail)
		if err == nil && annotate != nil {
			annotate(&b)
		}
		return b, err
	})
	if err != nil {
		r.fail(span, err)
		r.logger.ErrorErr("append rejected", err, map[string]any{"operation": kind, "filename": filename})
		return model.Block{}, err
	}

	span.SetAttributes(attribute.Int("block.index", b.Index))
	r.metrics.RecordAppend(string(b.Operation), b.Index+1)
	r.logger.Info("block appended", map[string]any{
		"index":      b.Index,
		"operation":  b.Operation,
		"filename":   b.Filename,
		"block_hash": b.BlockHash,
	})
	if r.hooks != nil {
		r.metrics.RecordWebhookEvent(string(webhook.EventBlockAppended))
		_ = r.hooks.BlockAppended(b.Index, string(b.Operation), b.Filename, string(b.BlockHash), true)
	}
	return b, nil
}

func (r *Recorder) fail(span trace.Span, err error) {
	r.metrics.RecordAppendFailure(errclass.Code(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Chain returns a snapshot of the chain in order.
func (r *Recorder) Chain() Snapshot {
	return r.log.Snapshot()
}

// ValidateChain validates a snapshot of the chain. Verdict changes fire
// chain.invalid and chain.recovered webhook events.
func (r *Recorder) ValidateChain() verify.Result {
	return r.ValidateSnapshot(r.log.Snapshot())
}

// ValidateSnapshot validates snap, so callers can report a verdict for
// exactly the blocks they return.
func (r *Recorder) ValidateSnapshot(snap Snapshot) verify.Result {
	start := time.Now()
	res := r.validator.Validate(snap.blocks)
	r.metrics.RecordValidation(res.Valid, time.Since(start))

	r.verdictMu.Lock()
	prev := r.lastValid
	valid := res.Valid
	r.lastValid = &valid
	r.verdictMu.Unlock()

	changed := prev == nil || *prev != res.Valid
	switch {
	case !res.Valid && changed:
		fields := map[string]any{"reason": res.Reason, "chain_length": snap.Len()}
		if res.InvalidIndex != nil {
			fields["invalid_block"] = *res.InvalidIndex
		}
		r.logger.Error("chain validation failed", fields)
		if r.hooks != nil {
			r.metrics.RecordWebhookEvent(string(webhook.EventChainInvalid))
			_ = r.hooks.ChainInvalid(res.InvalidIndex, res.Reason, snap.Len(), true)
		}
	case res.Valid && prev != nil && !*prev:
		r.logger.Info("chain validation recovered", map[string]any{"chain_length": snap.Len()})
		if r.hooks != nil {
			r.metrics.RecordWebhookEvent(string(webhook.EventChainRecovered))
			_ = r.hooks.ChainRecovered(snap.Len(), true)
		}
	}
	return res
}
