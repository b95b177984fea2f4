package chain

import (
	"sync"

	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// Log is the in-memory ordered block sequence. All mutation goes through
// Append and AppendFunc under one lock.
type Log struct {
	mu     sync.RWMutex
	blocks []model.Block
}

// NewLog creates a log holding exactly the genesis block.
func NewLog(genesis model.Block) *Log {
	return &Log{blocks: []model.Block{genesis}}
}

// NewLogFromBlocks creates a log over blocks as given, without linkage checks.
// It is used to inspect imported chains; run a validator over the snapshot
// before trusting it.
func NewLogFromBlocks(blocks []model.Block) *Log {
	cp := make([]model.Block, len(blocks))
	copy(cp, blocks)
	return &Log{blocks: cp}
}

// Append adds b if it links onto the current tail and returns the new length.
// A block built from an outdated tail is rejected with ErrStaleTail.
func (l *Log) Append(b model.Block) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLink(b); err != nil {
		return len(l.blocks), err
	}
	l.blocks = append(l.blocks, b)
	return len(l.blocks), nil
}

// AppendFunc reads the tail, builds a block from it and appends the result
// as one atomic unit.
func (l *Log) AppendFunc(build func(tail *model.Block) (model.Block, error)) (model.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var tail *model.Block
	if n := len(l.blocks); n > 0 {
		t := l.blocks[n-1]
		tail = &t
	}

	b, err := build(tail)
	if err != nil {
		return model.Block{}, err
	}
	if err := l.checkLink(b); err != nil {
		return model.Block{}, err
	}
	l.blocks = append(l.blocks, b)
	return b, nil
}

func (l *Log) checkLink(b model.Block) error {
	n := len(l.blocks)
	if n == 0 {
		if b.Index != 0 || b.PreviousHash != model.ZeroHash {
			return errclass.ErrStaleTail.WithMessagef("first block must have index 0, got %d", b.Index)
		}
		return nil
	}
	tail := l.blocks[n-1]
	if b.Index != tail.Index+1 {
		return errclass.ErrStaleTail.WithMessagef("index %d does not follow tail %d", b.Index, tail.Index)
	}
	if b.PreviousHash != tail.BlockHash {
		return errclass.ErrStaleTail.WithMessagef("previous_hash does not match tail %d", tail.Index)
	}
	return nil
}

// Len returns the number of blocks.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// Snapshot returns a consistent read-only view of the log.
func (l *Log) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]model.Block, len(l.blocks))
	copy(cp, l.blocks)
	return Snapshot{blocks: cp}
}

// Snapshot is an immutable view of the chain at one point in time.
type Snapshot struct {
	blocks []model.Block
}

// Len returns the number of blocks in the snapshot.
func (s Snapshot) Len() int {
	return len(s.blocks)
}

// At returns the block at position i.
func (s Snapshot) At(i int) (model.Block, bool) {
	if i < 0 || i >= len(s.blocks) {
		return model.Block{}, false
	}
	return s.blocks[i], true
}

// Tail returns the last block.
func (s Snapshot) Tail() (model.Block, bool) {
	return s.At(len(s.blocks) - 1)
}

// Blocks returns a copy of the blocks in chain order.
func (s Snapshot) Blocks() []model.Block {
	cp := make([]model.Block, len(s.blocks))
	copy(cp, s.blocks)
	return cp
}

// Newest returns a copy of the blocks, newest first.
func (s Snapshot) Newest() []model.Block {
	out := make([]model.Block, len(s.blocks))
	for i, b := range s.blocks {
		out[len(s.blocks)-1-i] = b
	}
	return out
}
