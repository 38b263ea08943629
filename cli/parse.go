package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var parseOutputDir string

var parseCmd = &cobra.Command{
	Use:   "parse <files...>",
	Short: "Parse documents into markdown via the parsing service",
	Long: `Submit parse jobs for object-storage documents and poll them to
completion.

Each file becomes one job; the parsed markdown lands in --output-dir
under the source file's name with a .md extension. With error handling
set to continue_on_error, a failing file is recorded and the batch
moves on; with fail_fast the first failure aborts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVarP(&parseOutputDir, "output-dir", "d", "", "Object-storage directory for parsed output (required)")
	parseCmd.MarkFlagRequired("output-dir")
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadProjectConfig()
	if err != nil {
		return err
	}

	client, err := cfg.ParserDescriptor().Instantiate()
	if err != nil {
		return err
	}

	result, err := client.ParseFiles(cmd.Context(), args, parseOutputDir)
	if err != nil {
		return err
	}

	fmt.Printf("Parsed %d/%d files\n", result.SuccessCount(), result.TotalCount())
	for _, f := range result.Failed {
		fmt.Printf("  failed: %s: %s\n", f.SourcePath, f.ErrorMessage)
	}

	if result.FailedCount() > 0 {
		return fmt.Errorf("%d of %d files failed to parse", result.FailedCount(), result.TotalCount())
	}

	return nil
}
