package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Block is one immutable record of a completed operation plus its chain linkage.
type Block struct {
	Index        int       `json:"index"`
	PreviousHash HashValue `json:"previous_hash"`
	Timestamp    string    `json:"timestamp"`
	Operation    Operation `json:"operation"`
	Filename     string    `json:"filename"`
	Result       string    `json:"result"`
	BlockHash    HashValue `json:"block_hash"`

	// StoredHash and CurrentHash record the digests a VERIFICATION compared.
	// They are not part of the header hash.
	StoredHash  string    `json:"stored_hash,omitempty"`
	CurrentHash HashValue `json:"current_hash,omitempty"`

	// Legacy is set when the block was ingested from an older shape that had no
	// block_hash key. BlockHash then holds the link hash taken from "hash" or
	// "current_hash", possibly empty, and is not recomputable from the header
	// fields. A block_hash key that is present but empty is not legacy.
	Legacy bool `json:"-"`
}

// Time parses the block timestamp as a UTC instant.
func (b Block) Time() (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, b.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", b.Timestamp, err)
	}
	return t.UTC(), nil
}

// IsGenesis reports whether b sits at the start of a chain.
func (b Block) IsGenesis() bool {
	return b.Index == 0 && b.PreviousHash == ZeroHash
}

// wireBlock is the superset of every block shape that has been serialized.
type wireBlock struct {
	Index        *int      `json:"index"`
	PreviousHash HashValue `json:"previous_hash"`
	Timestamp    string    `json:"timestamp"`
	Operation    Operation `json:"operation"`
	Filename     string    `json:"filename"`
	Result       string    `json:"result"`
	BlockHash    *HashValue `json:"block_hash,omitempty"`
	Hash         HashValue  `json:"hash,omitempty"`
	StoredHash   string     `json:"stored_hash,omitempty"`
	CurrentHash  HashValue  `json:"current_hash,omitempty"`
}

// UnmarshalJSON decodes a block and normalizes legacy shapes so the rest of
// the code only ever sees BlockHash.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Index == nil {
		return fmt.Errorf("block: missing index")
	}
	*b = Block{
		Index:        *w.Index,
		PreviousHash: w.PreviousHash,
		Timestamp:    w.Timestamp,
		Operation:    w.Operation,
		Filename:     w.Filename,
		Result:       w.Result,
		StoredHash:   w.StoredHash,
		CurrentHash:  w.CurrentHash,
	}
	if w.BlockHash != nil {
		b.BlockHash = *w.BlockHash
		return nil
	}
	b.Legacy = true
	switch {
	case w.Hash != "":
		b.BlockHash = w.Hash
	case w.CurrentHash != "":
		b.BlockHash = w.CurrentHash
	}
	return nil
}

// MarshalJSON writes the canonical shape. Legacy blocks keep their link hash
// under "hash" so they round-trip without gaining a recomputable block_hash.
func (b Block) MarshalJSON() ([]byte, error) {
	idx := b.Index
	w := wireBlock{
		Index:        &idx,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
		Operation:    b.Operation,
		Filename:     b.Filename,
		Result:       b.Result,
		StoredHash:   b.StoredHash,
		CurrentHash:  b.CurrentHash,
	}
	if b.Legacy {
		w.Hash = b.BlockHash
	} else {
		h := b.BlockHash
		w.BlockHash = &h
	}
	return json.Marshal(w)
}
