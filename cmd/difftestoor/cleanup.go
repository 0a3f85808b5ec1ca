package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/ethpandaops/difftestoor/pkg/janitor"
	"github.com/ethpandaops/difftestoor/pkg/toolchain"
	"github.com/spf13/cobra"
)

var (
	forceCleanup       bool
	cleanupArtifactDir string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove build artifacts left behind by interrupted runs",
	Long: `Remove every file in the artifact directory that follows the
<basename>_reference / <basename>_candidate naming of compiled test programs.
This is useful after a run was killed before it could clean up after itself.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVarP(&forceCleanup, "force", "f", false, "Skip confirmation prompt")
	cleanupCmd.Flags().StringVar(&cleanupArtifactDir, "artifact-dir", "",
		"Directory to clean (overrides run.artifact_dir)")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := applyConfigLogLevel(cmd, cfg.Global.LogLevel); err != nil {
		return err
	}

	dir := cfg.Run.ArtifactDir
	if cleanupArtifactDir != "" {
		dir = cleanupArtifactDir
	}

	artifacts, err := janitor.List(dir, toolchain.Tags)
	if err != nil {
		return fmt.Errorf("listing artifacts: %w", err)
	}

	if len(artifacts) == 0 {
		log.WithField("dir", dir).Info("No difftestoor artifacts found")

		return nil
	}

	fmt.Printf("\nArtifacts to be removed (%d):\n", len(artifacts))

	for _, path := range artifacts {
		fmt.Printf("  - %s\n", path)
	}

	fmt.Println()

	// Prompt for confirmation if not forced.
	if !forceCleanup {
		fmt.Print("Are you sure you want to remove these artifacts? [y/N] ")

		reader := bufio.NewReader(os.Stdin)

		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			log.Info("Cleanup cancelled")

			return nil
		}
	}

	removed, err := janitor.Cleanup(log, dir, toolchain.Tags)
	if err != nil {
		return fmt.Errorf("removing artifacts: %w", err)
	}

	log.WithField("removed", len(removed)).Info("Cleanup completed")

	return nil
}
