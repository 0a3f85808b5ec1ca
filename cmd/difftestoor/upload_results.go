package main

import (
	"fmt"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/ethpandaops/difftestoor/pkg/report"
	"github.com/ethpandaops/difftestoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var uploadRunDirs []string

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload run directories to S3",
	Long: `Upload one or more local run directories written by "run" to the
S3-compatible bucket configured under results.upload.s3. Every directory must
contain a readable report.json; the bucket is checked for write access before
anything is uploaded.`,
	RunE: runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)
	uploadResultsCmd.Flags().StringSliceVar(&uploadRunDirs, "run-dir", nil,
		"Run directory to upload (repeatable)")

	_ = uploadResultsCmd.MarkFlagRequired("run-dir")
}

func runUploadResults(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s3Cfg := cfg.S3Upload()
	if s3Cfg == nil {
		return fmt.Errorf("results.upload.s3 is not configured or not enabled")
	}

	// Reject anything that is not a run directory before touching the bucket.
	for _, dir := range uploadRunDirs {
		if _, err := report.ReadReport(dir); err != nil {
			return fmt.Errorf("%s is not a run directory: %w", dir, err)
		}
	}

	uploader, err := upload.NewS3Uploader(log, s3Cfg)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("S3 upload preflight check failed: %w", err)
	}

	for _, dir := range uploadRunDirs {
		location, err := uploader.Upload(ctx, dir)
		if err != nil {
			return fmt.Errorf("uploading %s: %w", dir, err)
		}

		log.WithFields(logrus.Fields{
			"dir":      dir,
			"location": location,
		}).Info("Run uploaded")
	}

	return nil
}
