package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashtrail-project/hashtrail/internal/doctor"
	"github.com/hashtrail-project/hashtrail/pkg/color"
)

func newHealthCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server",
		Long: `Check a running server.

Probes the port, then GET /health. The check passes only when the server
answers and reports a valid chain. Exits 1 otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := serverURL(url)
			if err != nil {
				return err
			}
			report, ok := doctor.NewDoctor(base, timeout).Health(cmd.Context())

			out := cmd.OutOrStdout()
			switch {
			case quiet:
			case jsonOutput:
				if err := outputJSON(out, report); err != nil {
					return err
				}
			default:
				printHealth(out, report, ok)
			}
			if !ok {
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "server base URL (default $TEST_URL or the configured port)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print nothing; report through the exit code")
	return cmd
}

func printHealth(w io.Writer, r *doctor.HealthReport, ok bool) {
	fmt.Fprintln(w, color.Header("Health check: "+r.Timestamp))
	fmt.Fprintf(w, "URL:              %s\n", color.Info(r.URL))
	if r.Error != "" {
		fmt.Fprintf(w, "%s %s\n", color.Error("FAIL"), r.Error)
		return
	}

	status := color.Success(r.Status)
	if r.Status != "healthy" {
		status = color.Warning(r.Status)
	}
	fmt.Fprintf(w, "Status:           %s\n", status)
	fmt.Fprintf(w, "Blockchain valid: %s\n", color.Verdict(r.BlockchainValid))
	fmt.Fprintf(w, "Block count:      %d\n", r.BlockCount)
	fmt.Fprintf(w, "Port:             %s\n", r.Port)
	fmt.Fprintf(w, "Version:          %s\n", r.Version)

	if ok {
		fmt.Fprintln(w, color.Success("Health check passed."))
	} else {
		fmt.Fprintln(w, color.Warning("WARNING: blockchain is not valid."))
	}
}
