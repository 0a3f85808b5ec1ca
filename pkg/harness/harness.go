package harness

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethpandaops/difftestoor/pkg/corpus"
	"github.com/ethpandaops/difftestoor/pkg/execrun"
	"github.com/ethpandaops/difftestoor/pkg/janitor"
	"github.com/ethpandaops/difftestoor/pkg/report"
	"github.com/ethpandaops/difftestoor/pkg/sysinfo"
	"github.com/ethpandaops/difftestoor/pkg/toolchain"
	"github.com/ethpandaops/difftestoor/pkg/verdict"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrTestsFailed signals that a run did not pass every discovered case.
var ErrTestsFailed = errors.New("one or more tests failed")

// Outcome returns nil when every discovered case passed and an error
// wrapping ErrTestsFailed otherwise. An empty corpus passes.
func Outcome(rep *report.RunReport) error {
	if rep.AllPassed() {
		return nil
	}

	return fmt.Errorf("%w: %d out of %d tests succeeded", ErrTestsFailed, rep.Passed, rep.Discovered)
}

// Config configures a harness run.
type Config struct {
	CorpusDir   string
	Suffix      string
	Filter      string
	ArtifactDir string
	Reference   *toolchain.Spec
	Candidate   *toolchain.Spec
	// Concurrency bounds the number of cases processed at once.
	Concurrency int
	// CasesPerSecond throttles case starts. Zero disables throttling.
	CasesPerSecond    float64
	CollectSystemInfo bool
}

// Harness drives a differential test run over a corpus.
type Harness interface {
	// Run discovers the corpus, processes every case and returns the report.
	// Artifacts are removed before Run returns, whatever the outcome.
	Run(ctx context.Context) (*report.RunReport, error)
}

// New creates a new harness.
func New(
	log logrus.FieldLogger,
	cfg *Config,
	driver toolchain.Driver,
	runner execrun.Runner,
) Harness {
	return &harness{
		log:    log.WithField("component", "harness"),
		cfg:    cfg,
		driver: driver,
		runner: runner,
	}
}

type harness struct {
	log    logrus.FieldLogger
	cfg    *Config
	driver toolchain.Driver
	runner execrun.Runner
}

// Ensure interface compliance.
var _ Harness = (*harness)(nil)

// Run executes the whole corpus.
func (h *harness) Run(ctx context.Context) (*report.RunReport, error) {
	if h.cfg.Reference == nil || h.cfg.Candidate == nil {
		return nil, errors.New("both reference and candidate toolchains are required")
	}

	startedAt := time.Now().UTC()
	runID := generateShortID()
	log := h.log.WithField("run_id", runID)

	artifactDir, err := filepath.Abs(h.cfg.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact directory: %w", err)
	}

	defer h.cleanup(log, artifactDir)

	corpusDir, err := filepath.Abs(h.cfg.CorpusDir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %q: %w", corpus.ErrDiscovery, h.cfg.CorpusDir, err)
	}

	cases, err := corpus.Discover(corpusDir, h.cfg.Suffix, h.cfg.Filter)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"corpus": corpusDir,
		"cases":  len(cases),
	}).Info("Discovered test cases")

	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}

	var system *sysinfo.Info
	if h.cfg.CollectSystemInfo {
		system = sysinfo.Collect(ctx, log)
	}

	agg := report.NewAggregator(cases)
	results := make(chan report.CaseResult)
	collected := make(chan error, 1)

	go func() {
		collected <- agg.Collect(results)
	}()

	h.runCases(ctx, log, cases, artifactDir, results)

	close(results)

	if err := <-collected; err != nil {
		log.WithError(err).Warn("Failed to record some case results")
	}

	rep := agg.Report()
	rep.RunID = runID
	rep.StartedAt = startedAt
	rep.FinishedAt = time.Now().UTC()
	rep.Reference = report.ToolchainInfo{Tag: h.cfg.Reference.Tag, Label: h.cfg.Reference.Label}
	rep.Candidate = report.ToolchainInfo{Tag: h.cfg.Candidate.Tag, Label: h.cfg.Candidate.Label}
	rep.System = system

	if ctx.Err() != nil && rep.Run < rep.Discovered {
		rep.Interrupted = true
		rep.InterruptReason = context.Cause(ctx).Error()
	}

	log.WithFields(logrus.Fields{
		"discovered": rep.Discovered,
		"run":        rep.Run,
		"passed":     rep.Passed,
		"failed":     rep.Failed,
	}).Info("Run completed")

	return rep, nil
}

// runCases processes the cases on a bounded worker pool and sends each
// completed result on results. It returns once every started case finished.
func (h *harness) runCases(
	ctx context.Context,
	log logrus.FieldLogger,
	cases []corpus.TestCase,
	artifactDir string,
	results chan<- report.CaseResult,
) {
	concurrency := max(h.cfg.Concurrency, 1)

	var limiter *rate.Limiter
	if h.cfg.CasesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.CasesPerSecond), 1)
	}

	// A failing case never cancels its siblings, so no group context.
	var g errgroup.Group

	g.SetLimit(concurrency)

	for _, tc := range cases {
		if ctx.Err() != nil {
			break
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}

		g.Go(func() error {
			// Check for cancellation before starting work.
			if ctx.Err() != nil {
				return nil
			}

			if result, ok := h.runCase(ctx, log, tc, artifactDir); ok {
				results <- result
			}

			return nil
		})
	}

	_ = g.Wait()
}

// runCase processes one case and converts any unexpected error or panic
// into an error verdict. It reports false when the case was interrupted by
// cancellation and must not be recorded.
func (h *harness) runCase(
	ctx context.Context,
	log logrus.FieldLogger,
	tc corpus.TestCase,
	artifactDir string,
) (result report.CaseResult, ok bool) {
	caseLog := log.WithField("case", tc.Name)
	start := time.Now()

	result.Case = tc

	defer func() {
		if r := recover(); r != nil {
			caseLog.WithField("panic", r).Error("Recovered from panic while processing case")

			result.Verdict = verdict.Errored(fmt.Sprintf("panic: %v", r))
			ok = true
		}

		result.Duration = time.Since(start)
	}()

	if err := h.process(ctx, caseLog, &result, artifactDir); err != nil {
		if ctx.Err() != nil {
			caseLog.Debug("Case interrupted")

			return result, false
		}

		result.Verdict = verdict.Errored(err.Error())
	}

	if result.Verdict.Passed() {
		caseLog.Info("Test successful")
	} else {
		caseLog.WithField("reason", result.Verdict.String()).Warn("Test failed")
	}

	return result, true
}

// process walks one case through build, execution and comparison. Any
// failed build or run is terminal for the case.
func (h *harness) process(
	ctx context.Context,
	log logrus.FieldLogger,
	result *report.CaseResult,
	artifactDir string,
) error {
	specs := []*toolchain.Spec{h.cfg.Reference, h.cfg.Candidate}
	artifacts := make([]string, len(specs))

	for i, spec := range specs {
		output := filepath.Join(artifactDir, result.Case.ArtifactName(spec.Tag))

		log.WithField("toolchain", spec.Label).Info("Compiling test case")

		build := h.driver.Compile(ctx, spec, result.Case.Path, output)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		setBuild(result, spec.Tag, build)

		if build.TimedOut {
			result.Verdict = verdict.Timeout(spec.Tag, verdict.StageBuild)

			return nil
		}

		if !build.Built {
			log.WithFields(logrus.Fields{
				"toolchain": spec.Label,
				"exit_code": build.ExitCode,
			}).Debugf("Build failed:\n%s", build.Diagnostics)

			result.Verdict = verdict.BuildFailed(spec.Tag)

			return nil
		}

		artifacts[i] = build.ArtifactPath
	}

	for i, spec := range specs {
		log.WithField("toolchain", spec.Label).Info("Executing program")

		run, err := h.runner.Run(ctx, artifacts[i])
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, execrun.ErrLaunch) {
			result.Verdict = verdict.LaunchFailed(spec.Tag, err.Error())

			return nil
		}

		if err != nil {
			return fmt.Errorf("running %s program: %w", spec.Label, err)
		}

		setRun(result, spec.Tag, run)

		if run.TimedOut {
			result.Verdict = verdict.Timeout(spec.Tag, verdict.StageRun)

			return nil
		}
	}

	result.Verdict = verdict.Compare(result.ReferenceRun, result.CandidateRun)

	return nil
}

func setBuild(result *report.CaseResult, tag toolchain.Tag, build *toolchain.BuildResult) {
	if tag == toolchain.TagReference {
		result.ReferenceBuild = build
	} else {
		result.CandidateBuild = build
	}
}

func setRun(result *report.CaseResult, tag toolchain.Tag, run *execrun.Result) {
	if tag == toolchain.TagReference {
		result.ReferenceRun = run
	} else {
		result.CandidateRun = run
	}
}

// cleanup removes every artifact produced for the configured toolchains.
func (h *harness) cleanup(log logrus.FieldLogger, artifactDir string) {
	tags := []toolchain.Tag{h.cfg.Reference.Tag, h.cfg.Candidate.Tag}

	removed, err := janitor.Cleanup(log, artifactDir, tags)
	if err != nil {
		log.WithError(err).Warn("Failed to remove some artifacts")
	}

	log.WithField("removed", len(removed)).Debug("Artifact cleanup finished")
}

// generateShortID generates a short random hex ID (8 characters).
func generateShortID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails.
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
	}

	return hex.EncodeToString(b)
}
