package integrity

import (
	"encoding/json"
	"fmt"

	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// MerkleResult is the outcome of a proof fold.
type MerkleResult struct {
	Valid          bool            `json:"is_valid"`
	CalculatedRoot model.HashValue `json:"calculated_root"`
	ProvidedRoot   model.HashValue `json:"provided_root"`
}

// ParseProof decodes a JSON array of hex sibling hashes.
func ParseProof(raw string) ([]model.HashValue, error) {
	var proof []model.HashValue
	if err := json.Unmarshal([]byte(raw), &proof); err != nil {
		return nil, errclass.ErrMalformedInput.WithMessage("invalid proof format, expected JSON array")
	}
	return proof, nil
}

// FoldProof starts from the digest of data and folds each sibling by hashing
// the hex concatenation current+sibling. Sibling position is not encoded, so
// every sibling is treated as a right sibling.
func FoldProof(data []byte, proof []model.HashValue) model.HashValue {
	current := Digest(data)
	for _, sibling := range proof {
		current = Digest([]byte(fmt.Sprintf("%s%s", current, sibling)))
	}
	return current
}

// VerifyMerkleProof folds proof over data and compares against root.
func VerifyMerkleProof(data []byte, proof []model.HashValue, root model.HashValue) MerkleResult {
	calculated := FoldProof(data, proof)
	return MerkleResult{
		Valid:          Equal(calculated, root),
		CalculatedRoot: calculated,
		ProvidedRoot:   root,
	}
}
