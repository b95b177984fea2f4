package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/pkg/client"
	"github.com/hashtrail-project/hashtrail/pkg/color"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// localVerdict is the result of verifying a file without a server.
type localVerdict struct {
	Filename     string          `json:"filename"`
	Valid        bool            `json:"is_valid"`
	CurrentHash  model.HashValue `json:"current_hash"`
	ExpectedHash string          `json:"expected_hash"`
	Algorithm    string          `json:"algorithm"`
}

func newVerifyCmd() *cobra.Command {
	var (
		url          string
		algorithm    string
		timeout      time.Duration
		showProgress bool
	)
	cmd := &cobra.Command{
		Use:   "verify <file> <hash>",
		Short: "Check a file against a known hash",
		Long: `Check a file against a known hash.

Without --url the comparison is local. With --url the file is uploaded to
POST /verify and the server appends a VERIFICATION block recording the
outcome. Exits 1 when the file does not match.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, expected := args[0], strings.TrimSpace(args[1])
			out := cmd.OutOrStdout()

			var valid bool
			if url != "" {
				r, done, err := openInput(path, "uploading", showProgress, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				receipt, err := client.New(url, client.WithTimeout(timeout)).Verify(cmd.Context(), filepath.Base(path), r, expected)
				done()
				if err != nil {
					return err
				}
				valid = receipt.Status == model.ResultValid
				if jsonOutput {
					if err := outputJSON(out, receipt); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "%s %s: %s\n", color.Verdict(valid), receipt.Filename, receipt.Message)
					fmt.Fprintf(out, "Recorded as block %d (%s)\n", receipt.BlockIndex, color.Hash(string(receipt.BlockHash)))
				}
			} else {
				d, err := digestFile(path, algorithm, showProgress, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				valid = integrity.Equal(d.Hash, model.HashValue(expected))
				if jsonOutput {
					v := localVerdict{Filename: path, Valid: valid, CurrentHash: d.Hash, ExpectedHash: expected, Algorithm: d.Algorithm}
					if err := outputJSON(out, v); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "%s %s\n", color.Verdict(valid), path)
					if !valid {
						fmt.Fprintf(out, "  expected %s\n  current  %s\n", expected, d.Hash)
					}
				}
			}

			if !valid {
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "verify on this server and record the outcome")
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "sha256", "digest algorithm for local verification (sha256, sha1, md5)")
	cmd.Flags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "request timeout")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "draw a progress bar on stderr")
	return cmd
}
