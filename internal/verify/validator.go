// Package verify checks the integrity of a block chain.
package verify

import (
	"fmt"

	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// Result contains the verdict for a chain.
type Result struct {
	Valid         bool   `json:"valid"`
	InvalidIndex  *int   `json:"invalid_block"`
	Reason        string `json:"reason,omitempty"`
	BlocksChecked int    `json:"blocks_checked"`
}

// Verdict returns the validity and the first invalid index, if any.
func (r Result) Verdict() (bool, *int) {
	return r.Valid, r.InvalidIndex
}

// Validator walks a chain and reports the first block that breaks it.
type Validator struct {
	hasher integrity.Hasher
}

// NewValidator creates a validator that recomputes header hashes with h.
func NewValidator(h integrity.Hasher) *Validator {
	if h == nil {
		h = integrity.SHA256
	}
	return &Validator{hasher: h}
}

// Validate runs a single linear pass over blocks and stops at the first
// failure. It never panics and always returns a verdict.
func (v *Validator) Validate(blocks []model.Block) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = invalid(0, fmt.Sprintf("validator panic: %v", r), 0)
		}
	}()

	if len(blocks) == 0 {
		return Result{Valid: true}
	}

	first := blocks[0]
	if first.Index != 0 || first.PreviousHash != model.ZeroHash {
		return invalid(0, "genesis block must have index 0 and all-zero previous_hash", 1)
	}

	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1], blocks[i]

		if cur.Index != i {
			return invalid(i, fmt.Sprintf("index %d at position %d", cur.Index, i), i+1)
		}
		if prev.BlockHash == "" {
			return invalid(i, "predecessor has no block_hash to link to", i+1)
		}
		if cur.PreviousHash != prev.BlockHash {
			return invalid(i, "previous_hash does not match predecessor block_hash", i+1)
		}
		if !cur.Legacy {
			if computed := integrity.BlockHash(v.hasher, cur); computed != cur.BlockHash {
				return invalid(i, "block_hash does not match recomputed header hash", i+1)
			}
		}

		curTime, err := cur.Time()
		if err != nil {
			return invalid(i, err.Error(), i+1)
		}
		prevTime, err := prev.Time()
		if err != nil {
			return invalid(i, fmt.Sprintf("predecessor %v", err), i+1)
		}
		if curTime.Before(prevTime) {
			return invalid(i, "timestamp earlier than predecessor", i+1)
		}
	}

	return Result{Valid: true, BlocksChecked: len(blocks)}
}

// Validate checks blocks with the default SHA-256 hasher.
func Validate(blocks []model.Block) Result {
	return NewValidator(integrity.SHA256).Validate(blocks)
}

func invalid(index int, reason string, checked int) Result {
	return Result{Valid: false, InvalidIndex: &index, Reason: reason, BlocksChecked: checked}
}
