// Command kpoolstat drives kpool pools with a synthetic workload and exports
// their statistics.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kpoolstat",
		Short: "Exercise and inspect kpool pools",
		Long: `kpoolstat builds pools from a YAML workload, hammers them with worker
goroutines, serves Prometheus metrics and writes periodic statistics dumps.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("kpoolstat v%s\n", version)
			cmd.Printf("Go version: %s\n", runtime.Version())
			cmd.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newRunCmd())
	root.AddCommand(newDecodeCmd())

	return root
}
