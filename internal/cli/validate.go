package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashtrail-project/hashtrail/internal/doctor"
	"github.com/hashtrail-project/hashtrail/pkg/color"
)

func newValidateCmd() *cobra.Command {
	var (
		url             string
		timeout         time.Duration
		skipServerCheck bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Smoke-test a deployment",
		Long: `Smoke-test a deployment.

Runs GET /health, POST /hash with a small test file, GET /blockchain-log and
GET /validate-chain against the server. The hash test appends one block to
the server's chain. Exits 1 if any test fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := serverURL(url)
			if err != nil {
				return err
			}
			doc := doctor.NewDoctor(base, timeout)

			if !skipServerCheck {
				if err := doc.Reachable(cmd.Context()); err != nil {
					if !jsonOutput {
						fmtErr("%v", err)
						fmtErr("start the server with %s", color.Info("hashtrail serve"))
					}
					return exitError{code: 1}
				}
			}

			result := doc.Smoke(cmd.Context())
			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := outputJSON(out, result); err != nil {
					return err
				}
			} else {
				printSmoke(out, doc.URL(), result)
			}
			if !result.Healthy {
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "server base URL (default $TEST_URL or the configured port)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	cmd.Flags().BoolVar(&skipServerCheck, "skip-server-check", false, "skip the TCP reachability probe")
	return cmd
}

func printSmoke(w io.Writer, url string, r *doctor.Result) {
	fmt.Fprintf(w, "Running validation tests against %s\n\n", color.Info(url))

	passed := 0
	for _, c := range r.Checks {
		if c.Passed {
			passed++
			fmt.Fprintf(w, "  %s %s %s (%s)\n", color.Success("PASS"), c.Method, c.Endpoint, c.Description)
			continue
		}
		fmt.Fprintf(w, "  %s %s %s (%s): %s\n", color.Error("FAIL"), c.Method, c.Endpoint, c.Description, c.Error)
	}
	for _, f := range r.Findings {
		fmt.Fprintf(w, "  [%s] %s: %s\n", f.Severity, f.Category, f.Description)
	}

	failed := len(r.Checks) - passed
	fmt.Fprintf(w, "\nTests completed: %d, passed: %d, failed: %d\n", len(r.Checks), passed, failed)
}
