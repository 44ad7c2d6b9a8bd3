package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/marginalia"
	"github.com/jward/marginalia/internal/events"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		fmt.Fprintf(os.Stderr, "marginalia: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "marginalia",
	Short:         "Extract and index structured meta comments from source text",
	Long:          "Marginalia scans source files for '# meta:' and '# doc:' comments, binds each annotation block to the symbol or anchor it describes, and emits an ordered inventory plus derived lookup indexes.",
	Version:       marginalia.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	// No Run — prints help by default.
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(indexesCmd)
}

// exitCodeError carries a non-zero exit code computed from the event
// recorder's contract. main exits with the code without printing anything —
// the events presentation has already gone to stderr.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// finish prints the events presentation to stderr and converts the
// recorder's exit code into the command result.
func finish(cmd *cobra.Command, rec *events.Recorder) error {
	for _, line := range rec.PresentationLines() {
		fmt.Fprintln(cmd.ErrOrStderr(), line)
	}
	if code := rec.ExitCode(); code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}
