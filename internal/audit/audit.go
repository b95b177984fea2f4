// Package audit reads and writes chain files: JSONL exports produced by
// hashtrail and the JSON documents served by /blockchain-log.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/fsutil"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// Format names an on-disk chain layout.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatJSON  Format = "json"
)

// ParseFormat resolves a case-insensitive format name. Empty means JSONL.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jsonl", "ndjson":
		return FormatJSONL, nil
	case "json":
		return FormatJSON, nil
	}
	return "", errclass.ErrFormatUnsupported.WithMessagef("unsupported chain format: %s", s)
}

// TimestampChecker rejects block timestamps that are unacceptable for import.
type TimestampChecker interface {
	CheckTimestamp(ts string) error
}

// maxLine bounds a single JSONL record.
const maxLine = 1 << 20

// Export writes blocks to w in the given format, oldest first.
func Export(w io.Writer, blocks []model.Block, format Format) error {
	switch format {
	case FormatJSONL, "":
		enc := json.NewEncoder(w)
		for _, b := range blocks {
			if err := enc.Encode(b); err != nil {
				return fmt.Errorf("encode block %d: %w", b.Index, err)
			}
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if blocks == nil {
			blocks = []model.Block{}
		}
		if err := enc.Encode(blocks); err != nil {
			return fmt.Errorf("encode chain: %w", err)
		}
		return nil
	}
	return errclass.ErrFormatUnsupported.WithMessagef("unsupported chain format: %s", format)
}

// WriteFile exports blocks to path atomically.
func WriteFile(path string, blocks []model.Block, format Format) error {
	return fsutil.AtomicWriteFunc(path, 0644, func(w io.Writer) error {
		return Export(w, blocks, format)
	})
}

// logDocument is the /blockchain-log response body.
type logDocument struct {
	Blocks *[]model.Block `json:"blocks"`
}

// Read decodes a chain from r. It accepts JSONL, a JSON array of blocks, or
// an object with a "blocks" array. Blocks served newest first are put back
// in index order. When checker is non-nil every block timestamp is checked.
func Read(r io.Reader, checker TimestampChecker) ([]model.Block, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []model.Block{}, nil
		}
		return nil, fmt.Errorf("read chain: %w", err)
	}

	var blocks []model.Block
	switch first {
	case '[':
		if err := json.NewDecoder(br).Decode(&blocks); err != nil {
			return nil, errclass.ErrMalformedInput.WithMessagef("decode chain array: %v", err)
		}
	default:
		blocks, err = readLines(br)
		if err != nil {
			return nil, err
		}
	}

	if checker != nil {
		for _, b := range blocks {
			if err := checker.CheckTimestamp(b.Timestamp); err != nil {
				return nil, fmt.Errorf("block %d: %w", b.Index, err)
			}
		}
	}
	return blocks, nil
}

// readLines decodes one block per line. A single object carrying a "blocks"
// array is treated as a served log document.
func readLines(br *bufio.Reader) ([]model.Block, error) {
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	blocks := []model.Block{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if len(blocks) == 0 {
			if doc, ok := asLogDocument(line); ok {
				return doc, nil
			}
		}
		var b model.Block
		if err := json.Unmarshal(line, &b); err != nil {
			if doc, ok := readDocument(line, sc); ok {
				return doc, nil
			}
			return nil, errclass.ErrMalformedInput.WithMessagef("line %d: %v", lineNo, err)
		}
		blocks = append(blocks, b)
	}
	if err := sc.Err(); err != nil {
		return nil, errclass.ErrMalformedInput.WithMessagef("scan chain: %v", err)
	}
	return blocks, nil
}

// readDocument handles a pretty-printed log document by joining the first
// line with the rest of the input.
func readDocument(first []byte, sc *bufio.Scanner) ([]model.Block, bool) {
	if len(first) == 0 || first[0] != '{' {
		return nil, false
	}
	var buf bytes.Buffer
	buf.Write(first)
	for sc.Scan() {
		buf.WriteByte('\n')
		buf.Write(sc.Bytes())
	}
	return asLogDocument(buf.Bytes())
}

func asLogDocument(data []byte) ([]model.Block, bool) {
	var doc logDocument
	if err := json.Unmarshal(data, &doc); err != nil || doc.Blocks == nil {
		return nil, false
	}
	blocks := *doc.Blocks
	if n := len(blocks); n > 1 && blocks[0].Index > blocks[n-1].Index {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			blocks[i], blocks[j] = blocks[j], blocks[i]
		}
	}
	return blocks, true
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return c, nil
	}
}

// ReadFile reads a chain file from path.
func ReadFile(path string, checker TimestampChecker) ([]model.Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain file: %w", err)
	}
	defer f.Close()
	return Read(f, checker)
}
