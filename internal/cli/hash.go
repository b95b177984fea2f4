package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/pkg/client"
	"github.com/hashtrail-project/hashtrail/pkg/color"
	"github.com/hashtrail-project/hashtrail/pkg/model"
	"github.com/hashtrail-project/hashtrail/pkg/progress"
)

// localDigest is the result of hashing a file without a server.
type localDigest struct {
	Filename  string          `json:"filename"`
	Hash      model.HashValue `json:"hash"`
	Algorithm string          `json:"algorithm"`
	SizeBytes int64           `json:"file_size_bytes"`
}

func newHashCmd() *cobra.Command {
	var (
		url          string
		algorithm    string
		timeout      time.Duration
		showProgress bool
	)
	cmd := &cobra.Command{
		Use:   "hash <file>",
		Short: "Hash a file",
		Long: `Hash a file.

Without --url the digest is computed locally and nothing is recorded.
With --url the file is uploaded to POST /hash and the server appends a HASH
block to its chain.

Examples:
  hashtrail hash report.pdf
  hashtrail hash --algorithm md5 report.pdf
  hashtrail hash --url http://localhost:8000 report.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()

			if url != "" {
				r, done, err := openInput(path, "uploading", showProgress, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				receipt, err := client.New(url, client.WithTimeout(timeout)).Hash(cmd.Context(), filepath.Base(path), r)
				done()
				if err != nil {
					return err
				}
				if jsonOutput {
					return outputJSON(out, receipt)
				}
				fmt.Fprintf(out, "%s  %s\n", receipt.Hash, receipt.Filename)
				fmt.Fprintf(out, "Recorded as block %d (%s) at %s\n",
					receipt.BlockIndex, color.Hash(string(receipt.BlockHash)), formatTime(receipt.Timestamp))
				return nil
			}

			d, err := digestFile(path, algorithm, showProgress, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(out, d)
			}
			fmt.Fprintf(out, "%s  %s\n", d.Hash, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "record the hash on this server")
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "sha256", "digest algorithm for local hashing (sha256, sha1, md5)")
	cmd.Flags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "request timeout")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "draw a progress bar on stderr")
	return cmd
}

// openInput opens path for reading. With show set, reads are drawn as a
// progress bar on w. done closes the file and ends the bar.
func openInput(path, op string, show bool, w io.Writer) (r io.Reader, done func(), err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	term := progress.NewTerminalTo(w, show)
	pr := progress.NewReader(f, op+" "+filepath.Base(path), size, term.Callback())
	return pr, func() {
		term.Done()
		f.Close()
	}, nil
}

func digestFile(path, algorithm string, show bool, w io.Writer) (*localDigest, error) {
	h, err := integrity.LookupAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	r, done, err := openInput(path, "hashing", show, w)
	if err != nil {
		return nil, err
	}
	defer done()

	sum, n, err := integrity.DigestReaderWith(h, r)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	return &localDigest{Filename: path, Hash: sum, Algorithm: h.Name(), SizeBytes: n}, nil
}
