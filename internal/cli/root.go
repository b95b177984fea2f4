package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hashtrail-project/hashtrail/pkg/color"
)

var (
	jsonOutput bool
	configPath string
	noColor    bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hashtrail",
		Short: "hashtrail - tamper-evident file hashing service",
		Long: `hashtrail hashes and verifies files over HTTP and records every operation
in an append-only hash chain, so any later edit to the history is detectable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("HASHTRAIL_CONFIG"), "path to the configuration file")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newServeCmd(),
		newHealthCmd(),
		newValidateCmd(),
		newHashCmd(),
		newVerifyCmd(),
		newChainCmd(),
		newConfigCmd(),
		newVersionCmd(),
		newCompletionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmtErr("%v", err)
		os.Exit(1)
	}
}

// exitError ends the process with code after the command already reported
// the failure.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// outputJSON prints v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
