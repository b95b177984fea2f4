package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashtrail-project/hashtrail/internal/audit"
	"github.com/hashtrail-project/hashtrail/internal/doctor"
	"github.com/hashtrail-project/hashtrail/internal/verify"
	"github.com/hashtrail-project/hashtrail/pkg/client"
	"github.com/hashtrail-project/hashtrail/pkg/color"
	"github.com/hashtrail-project/hashtrail/pkg/model"
	"github.com/hashtrail-project/hashtrail/pkg/template"
)

// chainSource selects where blocks come from: a file when set, otherwise a
// server.
type chainSource struct {
	url     string
	file    string
	timeout time.Duration
}

func (s *chainSource) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.url, "url", "", "server base URL (default $TEST_URL or the configured port)")
	cmd.Flags().StringVarP(&s.file, "file", "f", "", "read an exported chain file instead of a server")
	cmd.Flags().DurationVar(&s.timeout, "timeout", client.DefaultTimeout, "request timeout")
}

func (s *chainSource) client() (*client.Client, error) {
	base, err := serverURL(s.url)
	if err != nil {
		return nil, err
	}
	return client.New(base, client.WithTimeout(s.timeout)), nil
}

// blocks returns the chain oldest first.
func (s *chainSource) blocks(ctx context.Context) ([]model.Block, error) {
	if s.file != "" {
		f, err := importFactory()
		if err != nil {
			return nil, err
		}
		return audit.ReadFile(s.file, f)
	}
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	log, err := c.Log(ctx)
	if err != nil {
		return nil, err
	}
	return oldestFirst(log.Blocks), nil
}

func oldestFirst(newest []model.Block) []model.Block {
	out := make([]model.Block, len(newest))
	for i, b := range newest {
		out[len(newest)-1-i] = b
	}
	return out
}

func newChainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain <command>",
		Short: "Inspect, validate and export the hash chain",
		Long: `Inspect, validate and export the hash chain.

Every command reads either a running server (--url) or a chain file written
by "hashtrail chain export" (--file).

Available commands:
  log       - List blocks, newest first
  validate  - Check the chain and report the first broken block
  export    - Write the chain to a JSONL or JSON file`,
		DisableFlagsInUseLine: true,
	}
	cmd.AddCommand(newChainLogCmd(), newChainValidateCmd(), newChainExportCmd())
	return cmd
}

func newChainLogCmd() *cobra.Command {
	var (
		src   chainSource
		limit int
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List blocks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			blocks, err := src.blocks(cmd.Context())
			if err != nil {
				return err
			}
			res := verify.Validate(blocks)
			newest := oldestFirst(blocks)
			if limit > 0 && limit < len(newest) {
				newest = newest[:limit]
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				status := model.ResultValid
				if !res.Valid {
					status = model.ResultInvalid
				}
				return outputJSON(out, map[string]any{
					"status":                "success",
					"block_count":           len(blocks),
					"chain_validity_status": status,
					"blocks":                newest,
				})
			}
			printLog(out, newest, len(blocks), res)
			return nil
		},
	}
	src.bind(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many blocks (0 for all)")
	return cmd
}

func printLog(w io.Writer, blocks []model.Block, total int, res verify.Result) {
	fmt.Fprintf(w, "%s %d blocks, chain %s\n\n", color.Header("Chain:"), total, color.Verdict(res.Valid))
	fmt.Fprintf(w, "%-6s %-14s %-20s %-12s %s\n", "INDEX", "OPERATION", "TIME", "BLOCK", "FILE")
	for _, b := range blocks {
		op := string(b.Operation)
		if b.Result != "" && b.Operation == model.OpVerification {
			op += ":" + b.Result
		}
		marker := ""
		if res.InvalidIndex != nil && *res.InvalidIndex == b.Index {
			marker = " " + color.Error("<- broken")
		}
		fmt.Fprintf(w, "%-6d %-14s %-20s %-12s %s%s\n",
			b.Index, op, formatTime(b.Timestamp), color.Hash(string(b.BlockHash)), b.Filename, marker)
	}
}

func newChainValidateCmd() *cobra.Command {
	var src chainSource
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the chain and report the first broken block",
		Long: `Check the chain and report the first broken block.

With --file the chain is validated locally: linkage, header hashes,
timestamp order and the future-timestamp tolerance. Otherwise the server
validates its own chain via GET /validate-chain. Exits 1 when invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var res verify.Result
			if src.file != "" {
				f, err := importFactory()
				if err != nil {
					return err
				}
				result, r, err := doctor.CheckChainFile(src.file, f)
				if err != nil {
					return err
				}
				res = r
				if jsonOutput {
					if err := outputJSON(out, map[string]any{"result": res, "findings": result.Findings}); err != nil {
						return err
					}
				} else {
					printVerdict(out, res.Valid, res.InvalidIndex, res.Reason)
					for _, f := range result.Findings {
						if f.Severity != "critical" {
							fmt.Fprintf(out, "  [%s] %s\n", f.Severity, f.Description)
						}
					}
				}
			} else {
				c, err := src.client()
				if err != nil {
					return err
				}
				v, err := c.ValidateChain(cmd.Context())
				if err != nil {
					return err
				}
				res = verify.Result{Valid: v.Valid, InvalidIndex: v.InvalidBlock}
				if jsonOutput {
					if err := outputJSON(out, v); err != nil {
						return err
					}
				} else {
					printVerdict(out, v.Valid, v.InvalidBlock, "")
				}
			}

			if !res.Valid {
				return exitError{code: 1}
			}
			return nil
		},
	}
	src.bind(cmd)
	return cmd
}

func printVerdict(w io.Writer, valid bool, idx *int, reason string) {
	if valid {
		fmt.Fprintf(w, "Chain %s\n", color.Verdict(true))
		return
	}
	fmt.Fprintf(w, "Chain %s at block %s", color.Verdict(false), blockLabel(idx))
	if reason != "" {
		fmt.Fprintf(w, ": %s", reason)
	}
	fmt.Fprintln(w)
}

func blockLabel(idx *int) string {
	if idx == nil {
		return "?"
	}
	return fmt.Sprint(*idx)
}

func newChainExportCmd() *cobra.Command {
	var (
		src    chainSource
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the chain to a JSONL or JSON file",
		Long: `Write the chain to a JSONL or JSON file, oldest block first.

The file is written atomically. Without --output the chain goes to stdout.
The output name may use {date}, {time}, {datetime}, {unix}, {hostname} and
{blocks} placeholders.

Examples:
  hashtrail chain export --url http://localhost:8000 -o chain.jsonl
  hashtrail chain export -o "chain-{datetime}-{blocks}.jsonl"
  hashtrail chain export --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := audit.ParseFormat(format)
			if err != nil {
				return err
			}
			blocks, err := src.blocks(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return audit.Export(cmd.OutOrStdout(), blocks, f)
			}
			path := template.Expand(output, time.Now(), map[string]string{"blocks": fmt.Sprint(len(blocks))})
			if err := audit.WriteFile(path, blocks, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d blocks to %s\n", len(blocks), path)
			return nil
		},
	}
	src.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "jsonl", "output format (jsonl, json)")
	return cmd
}
