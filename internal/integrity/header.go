package integrity

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// HeaderHash computes the header hash over a block's six fields.
//
// Fields are concatenated in fixed order with no separators or length
// prefixes. Two different field splits that concatenate to the same string
// hash identically; the encoding is kept as is so existing chains stay
// verifiable.
func HeaderHash(h Hasher, index int, previousHash model.HashValue, timestamp string, op model.Operation, filename, result string) model.HashValue {
	var b strings.Builder
	b.WriteString(strconv.Itoa(index))
	b.WriteString(string(previousHash))
	b.WriteString(timestamp)
	b.WriteString(string(op))
	b.WriteString(filename)
	b.WriteString(result)

	sum := h.New()
	sum.Write([]byte(b.String()))
	return model.HashValue(hex.EncodeToString(sum.Sum(nil)))
}

// BlockHash recomputes the header hash of b.
func BlockHash(h Hasher, b model.Block) model.HashValue {
	return HeaderHash(h, b.Index, b.PreviousHash, b.Timestamp, b.Operation, b.Filename, b.Result)
}
