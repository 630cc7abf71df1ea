// Command qcctl runs the sleeper plant QC calculations offline, against a
// shift snapshot file or values typed on the command line.
package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sleeperqc/sleeperqc/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the flags shared by every subcommand.
type options struct {
	json bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "qcctl",
		Short:        "Offline QC calculations for a sleeper plant shift",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print the result as JSON")

	root.AddCommand(
		newReportCmd(opts),
		newMoistureCmd(opts),
		newSigmaCmd(opts),
		newStrengthCmd(opts),
	)
	return root
}

// verdict renders a pass/fail word, green or red when the output is a terminal.
func verdict(ok bool) string {
	if ok {
		return color.New(color.FgGreen, color.Bold).Sprint("OK")
	}
	return color.New(color.FgRed, color.Bold).Sprint("NOT OK")
}

func heading(s string) string {
	return color.New(color.FgCyan, color.Bold).Sprint(s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// numbers parses command-line values through the same lenient boundary the
// API uses: blanks and garbage become 0.
func numbers(args []string) []float64 {
	raw := make([]any, len(args))
	for i, a := range args {
		raw[i] = a
	}
	return types.NormalizeStrengths(raw)
}
