// Package integrity computes file digests and block header hashes.
package integrity

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// ChunkSize is the read granularity of the digest engine. Peak memory while
// hashing is bounded by it regardless of input size.
const ChunkSize = 64 * 1024

// EmptyDigest is the SHA-256 of the empty input.
const EmptyDigest model.HashValue = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Hasher produces a fresh hash.Hash for one digest computation.
type Hasher interface {
	Name() string
	New() hash.Hash
}

type algorithm struct {
	name string
	new  func() hash.Hash
}

func (a algorithm) Name() string   { return a.name }
func (a algorithm) New() hash.Hash { return a.new() }

// SHA256 is the algorithm the chain is built on.
var SHA256 Hasher = algorithm{name: "sha256", new: sha256.New}

var algorithms = map[string]Hasher{
	"sha256": SHA256,
	"sha1":   algorithm{name: "sha1", new: sha1.New},
	"md5":    algorithm{name: "md5", new: md5.New},
}

// LookupAlgorithm resolves a case-insensitive algorithm name.
func LookupAlgorithm(name string) (Hasher, error) {
	h, ok := algorithms[strings.ToLower(name)]
	if !ok {
		return nil, errclass.ErrAlgorithmUnsupported.WithMessagef("unsupported algorithm: %s", name)
	}
	return h, nil
}

// Digest returns the SHA-256 of b as lowercase hex.
func Digest(b []byte) model.HashValue {
	return DigestWith(SHA256, b)
}

// DigestWith hashes b with h, feeding it in ChunkSize pieces.
func DigestWith(h Hasher, b []byte) model.HashValue {
	sum := h.New()
	for off := 0; off < len(b); off += ChunkSize {
		end := off + ChunkSize
		if end > len(b) {
			end = len(b)
		}
		sum.Write(b[off:end])
	}
	return model.HashValue(hex.EncodeToString(sum.Sum(nil)))
}

// DigestReader streams r through SHA-256 and returns the digest and the
// number of bytes read.
func DigestReader(r io.Reader) (model.HashValue, int64, error) {
	return DigestReaderWith(SHA256, r)
}

// DigestReaderWith streams r through h using a single ChunkSize buffer.
func DigestReaderWith(h Hasher, r io.Reader) (model.HashValue, int64, error) {
	sum := h.New()
	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(sum, onlyReader{r}, buf)
	if err != nil {
		return "", n, fmt.Errorf("digest: %w", err)
	}
	return model.HashValue(hex.EncodeToString(sum.Sum(nil))), n, nil
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b model.HashValue) bool {
	return strings.EqualFold(string(a), string(b))
}

// onlyReader hides WriterTo so io.CopyBuffer actually uses the bounded buffer.
type onlyReader struct{ io.Reader }

// ErrTooLarge is returned by LimitedReader once the limit is exceeded.
var ErrTooLarge = errors.New("input exceeds size limit")

// LimitedReader reads at most Limit bytes and fails with ErrTooLarge when the
// underlying reader has more.
type LimitedReader struct {
	R     io.Reader
	Limit int64
	read  int64
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.read > l.Limit {
		return 0, ErrTooLarge
	}
	if remaining := l.Limit + 1 - l.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := l.R.Read(p)
	l.read += int64(n)
	if l.read > l.Limit {
		return n, ErrTooLarge
	}
	return n, err
}
