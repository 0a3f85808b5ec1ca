package main

import (
	"fmt"
	"os"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/ethpandaops/difftestoor/pkg/report"
	"github.com/spf13/cobra"
)

var generateMarkdownSummaryCmd = &cobra.Command{
	Use:   "generate-markdown-summary",
	Short: "Generate a markdown summary from a run directory",
	Long:  `Reads report.json from a run directory (or the file itself) and produces a markdown summary file.`,
	RunE:  runGenerateMarkdownSummary,
}

var (
	mdRunDir   string
	mdOutput   string
	mdMaxChars int
)

func init() {
	rootCmd.AddCommand(generateMarkdownSummaryCmd)
	generateMarkdownSummaryCmd.Flags().StringVar(&mdRunDir, "run-dir", "",
		"Path to the run directory or its report.json")
	generateMarkdownSummaryCmd.Flags().StringVar(&mdOutput, "output", "",
		"Output file path, - for stdout (default: summary-<run_id>.md)")
	generateMarkdownSummaryCmd.Flags().IntVar(&mdMaxChars, "max-chars", config.DefaultMarkdownMaxChars,
		"Maximum summary length in characters")

	if err := generateMarkdownSummaryCmd.MarkFlagRequired("run-dir"); err != nil {
		panic(err)
	}
}

func runGenerateMarkdownSummary(_ *cobra.Command, _ []string) error {
	log.WithField("run_dir", mdRunDir).Info("Generating markdown summary")

	rep, err := report.ReadReport(mdRunDir)
	if err != nil {
		return fmt.Errorf("loading report: %w", err)
	}

	md := report.GenerateMarkdown(rep, mdMaxChars)

	if mdOutput == "-" {
		_, err := fmt.Fprint(os.Stdout, md)

		return err
	}

	output := mdOutput
	if output == "" {
		output = fmt.Sprintf("summary-%s.md", rep.RunID)
	}

	if err := os.WriteFile(output, []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	log.WithField("output", output).Info("Markdown summary generated successfully")

	return nil
}
