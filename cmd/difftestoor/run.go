package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/ethpandaops/difftestoor/pkg/execrun"
	"github.com/ethpandaops/difftestoor/pkg/fsutil"
	"github.com/ethpandaops/difftestoor/pkg/harness"
	"github.com/ethpandaops/difftestoor/pkg/history"
	"github.com/ethpandaops/difftestoor/pkg/report"
	"github.com/ethpandaops/difftestoor/pkg/toolchain"
	"github.com/ethpandaops/difftestoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	runConcurrency int
	runFilter      string
	runCorpusDir   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the differential test corpus",
	Long: `Build every test program with the reference and candidate toolchains,
execute both binaries and compare exit codes and standard output.

The command exits non-zero unless every discovered test passed.`,
	RunE: runDifferential,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0,
		"Number of test cases processed at once (overrides run.concurrency)")
	runCmd.Flags().StringVar(&runFilter, "filter", "",
		"Only run test programs whose file name contains this string")
	runCmd.Flags().StringVar(&runCorpusDir, "corpus-dir", "",
		"Directory containing the test programs (overrides corpus.dir)")
}

func runDifferential(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := applyConfigLogLevel(cmd, cfg.Global.LogLevel); err != nil {
		return err
	}

	if cmd.Flags().Changed("concurrency") {
		cfg.Run.Concurrency = runConcurrency
	}

	if cmd.Flags().Changed("filter") {
		cfg.Corpus.Filter = runFilter
	}

	if runCorpusDir != "" {
		cfg.Corpus.Dir = runCorpusDir
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	resultsOwner, err := fsutil.ParseOwner(cfg.Results.Owner)
	if err != nil {
		return fmt.Errorf("parsing results.owner: %w", err)
	}

	// Setup context with signal handling. The signal becomes the
	// interruption reason recorded in the report.
	ctx, cancel := context.WithCancelCause(cmd.Context())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel(fmt.Errorf("received signal %s", sig))
		case <-ctx.Done():
		}
	}()

	// Fail fast: verify S3 is reachable and writable before building anything.
	var resultsUploader upload.Uploader

	if s3Cfg := cfg.S3Upload(); s3Cfg != nil {
		resultsUploader, err = upload.NewS3Uploader(log, s3Cfg)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		if err := resultsUploader.Preflight(ctx); err != nil {
			return fmt.Errorf("S3 upload preflight check failed: %w", err)
		}

		log.Info("S3 upload preflight check passed")
	}

	h := harness.New(log, &harness.Config{
		CorpusDir:         cfg.Corpus.Dir,
		Suffix:            cfg.Corpus.Suffix,
		Filter:            cfg.Corpus.Filter,
		ArtifactDir:       cfg.Run.ArtifactDir,
		Reference:         toolchain.NewSpec(toolchain.TagReference, &cfg.Toolchains.Reference, cfg.Run.BuildTimeout),
		Candidate:         toolchain.NewSpec(toolchain.TagCandidate, &cfg.Toolchains.Candidate, cfg.Run.BuildTimeout),
		Concurrency:       cfg.Run.Concurrency,
		CasesPerSecond:    cfg.Run.CasesPerSecond,
		CollectSystemInfo: true,
	},
		toolchain.NewDriver(log),
		execrun.NewRunner(log, &execrun.Config{Timeout: cfg.Run.RunTimeout}),
	)

	rep, err := h.Run(ctx)
	if err != nil {
		return fmt.Errorf("running tests: %w", err)
	}

	if err := report.RenderText(os.Stdout, rep); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}

	// Persisting results uses the command context so an interrupted run is
	// still written out.
	persistResults(cmd.Context(), cfg, rep, resultsOwner, resultsUploader)

	return harness.Outcome(rep)
}

// persistResults writes, uploads and records a finished run. Failures are
// logged and never change the run outcome.
func persistResults(
	ctx context.Context,
	cfg *config.Config,
	rep *report.RunReport,
	owner *fsutil.OwnerConfig,
	uploader upload.Uploader,
) {
	if cfg.Results.Dir != "" {
		runDir, err := report.WriteRunDir(
			cfg.Results.Dir, rep, cfg.Results.Formats, cfg.Results.MarkdownMaxChars, owner,
		)
		if err != nil {
			log.WithError(err).Warn("Failed to write results")
		} else {
			log.WithField("dir", runDir).Info("Results written")

			if uploader != nil {
				location, err := uploader.Upload(ctx, runDir)
				if err != nil {
					log.WithError(err).Warn("Failed to upload results")
				} else {
					log.WithField("location", location).Info("Results uploaded")
				}
			}
		}
	}

	if cfg.History.Enabled {
		if err := recordHistory(ctx, &cfg.History, rep); err != nil {
			log.WithError(err).Warn("Failed to record run history")
		}
	}
}

func recordHistory(ctx context.Context, cfg *config.HistoryConfig, rep *report.RunReport) error {
	store := history.NewStore(log, cfg)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting history store: %w", err)
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop history store")
		}
	}()

	if err := store.RecordRun(ctx, rep); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	log.WithFields(logrus.Fields{
		"run_id": rep.RunID,
		"driver": cfg.Driver,
	}).Info("Run recorded in history")

	return nil
}
