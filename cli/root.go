package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	rootCmd = &cobra.Command{
		Use:   "aiudf",
		Short: "Batched embedding and document parsing client",
		Long: `aiudf drives rate-limited AI services from the command line.

It batches texts into token-budgeted embedding requests with automatic
chunking of oversized inputs, and submits document parse jobs that are
polled to completion, with configurable retry and error handling for
both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func SetVersion(v string) {
	version = v
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(watchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aiudf version %s\n", version)
	},
}
