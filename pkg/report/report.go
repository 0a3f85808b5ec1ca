package report

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/difftestoor/pkg/corpus"
	"github.com/ethpandaops/difftestoor/pkg/execrun"
	"github.com/ethpandaops/difftestoor/pkg/sysinfo"
	"github.com/ethpandaops/difftestoor/pkg/toolchain"
	"github.com/ethpandaops/difftestoor/pkg/verdict"
)

// CaseResult is the outcome of one test case together with the build and
// execution results that led to it. Results for skipped steps are nil.
type CaseResult struct {
	Case           corpus.TestCase        `json:"case" yaml:"case"`
	Verdict        verdict.Verdict        `json:"verdict" yaml:"verdict"`
	ReferenceBuild *toolchain.BuildResult `json:"reference_build,omitempty" yaml:"reference_build,omitempty"`
	CandidateBuild *toolchain.BuildResult `json:"candidate_build,omitempty" yaml:"candidate_build,omitempty"`
	ReferenceRun   *execrun.Result        `json:"reference_run,omitempty" yaml:"reference_run,omitempty"`
	CandidateRun   *execrun.Result        `json:"candidate_run,omitempty" yaml:"candidate_run,omitempty"`
	Duration       time.Duration          `json:"duration_ns" yaml:"duration"`
}

// ToolchainInfo identifies one side of the comparison in a report.
type ToolchainInfo struct {
	Tag   toolchain.Tag `json:"tag" yaml:"tag"`
	Label string        `json:"label" yaml:"label"`
}

// RunReport is the aggregated outcome of one harness invocation.
type RunReport struct {
	RunID           string        `json:"run_id" yaml:"run_id"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time     `json:"finished_at" yaml:"finished_at"`
	Reference       ToolchainInfo `json:"reference" yaml:"reference"`
	Candidate       ToolchainInfo `json:"candidate" yaml:"candidate"`
	Discovered      int           `json:"discovered" yaml:"discovered"`
	Run             int           `json:"run" yaml:"run"`
	Passed          int           `json:"passed" yaml:"passed"`
	Failed          int           `json:"failed" yaml:"failed"`
	Interrupted     bool          `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	InterruptReason string        `json:"interrupt_reason,omitempty" yaml:"interrupt_reason,omitempty"`
	System          *sysinfo.Info `json:"system,omitempty" yaml:"system,omitempty"`
	Cases           []CaseResult  `json:"cases" yaml:"cases"`
}

// Successful returns the passing cases in discovery order.
func (r *RunReport) Successful() []CaseResult {
	out := make([]CaseResult, 0, r.Passed)

	for _, c := range r.Cases {
		if c.Verdict.Passed() {
			out = append(out, c)
		}
	}

	return out
}

// FailedCases returns the failing cases in discovery order.
func (r *RunReport) FailedCases() []CaseResult {
	out := make([]CaseResult, 0, r.Failed)

	for _, c := range r.Cases {
		if !c.Verdict.Passed() {
			out = append(out, c)
		}
	}

	return out
}

// AllPassed reports whether every discovered case ran and passed. An empty
// corpus passes.
func (r *RunReport) AllPassed() bool {
	return r.Passed == r.Discovered
}

// Duration returns the wall clock time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// Aggregator accumulates case results slotted by discovery index. It is
// safe for concurrent use; the harness feeds it from a single collector.
type Aggregator struct {
	mu         sync.Mutex
	discovered []corpus.TestCase
	slots      []*CaseResult
}

// NewAggregator creates an aggregator for the discovered cases.
func NewAggregator(discovered []corpus.TestCase) *Aggregator {
	return &Aggregator{
		discovered: discovered,
		slots:      make([]*CaseResult, len(discovered)),
	}
}

// Add records the result of one case. Each case may be recorded once.
func (a *Aggregator) Add(result CaseResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := result.Case.Index
	if idx < 0 || idx >= len(a.slots) {
		return fmt.Errorf("case %q has index %d outside of %d discovered cases",
			result.Case.Name, idx, len(a.slots))
	}

	if a.slots[idx] != nil {
		return fmt.Errorf("case %q already has a result", result.Case.Name)
	}

	a.slots[idx] = &result

	return nil
}

// Collect records every result received on results until the channel is
// closed.
func (a *Aggregator) Collect(results <-chan CaseResult) error {
	var errs []error

	for result := range results {
		if err := a.Add(result); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Report returns a snapshot of the results recorded so far, in discovery
// order.
func (a *Aggregator) Report() *RunReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &RunReport{
		Discovered: len(a.discovered),
		Cases:      make([]CaseResult, 0, len(a.slots)),
	}

	for _, slot := range a.slots {
		if slot == nil {
			continue
		}

		r.Cases = append(r.Cases, *slot)
		r.Run++

		if slot.Verdict.Passed() {
			r.Passed++
		} else {
			r.Failed++
		}
	}

	return r
}
