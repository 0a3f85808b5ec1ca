package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/difftestoor/pkg/execrun"
	"github.com/ethpandaops/difftestoor/pkg/sysinfo"
	"github.com/ethpandaops/difftestoor/pkg/verdict"
)

// GenerateMarkdown renders a Markdown summary of a run. The output is capped
// at maxChars characters; zero disables the cap.
func GenerateMarkdown(r *RunReport, maxChars int) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, r.RunID)
	writeOverview(&sb, r)
	writeTestResults(&sb, r)
	writeToolchains(&sb, r)
	writeVerdictBreakdown(&sb, r)
	writeSystem(&sb, r.System)

	// Failed cases go last so truncation only ever drops rows from them.
	writeFailedCases(&sb, r.FailedCases(), maxChars)

	return sb.String()
}

func writeTitle(sb *strings.Builder, runID string) {
	fmt.Fprintf(sb, "# Differential Test Run: %s\n\n", runID)
}

func writeOverview(sb *strings.Builder, r *RunReport) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	status := "passed"
	if !r.AllPassed() {
		status = "failed"
	}

	if r.Interrupted {
		status = "interrupted"
	}

	fmt.Fprintf(sb, "| Status | %s |\n", status)

	if r.InterruptReason != "" {
		fmt.Fprintf(sb, "| Interrupt Reason | %s |\n", r.InterruptReason)
	}

	if !r.StartedAt.IsZero() {
		fmt.Fprintf(sb, "| Started | %s |\n",
			r.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	if d := r.Duration(); d > 0 {
		fmt.Fprintf(sb, "| Duration | %s |\n", formatDuration(d))
	}

	sb.WriteByte('\n')
}

func writeTestResults(sb *strings.Builder, r *RunReport) {
	sb.WriteString("## Test Results\n\n")
	sb.WriteString("| Discovered | Run | Passed | Failed |\n")
	sb.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(sb, "| %d | %d | %d | %d |\n\n",
		r.Discovered, r.Run, r.Passed, r.Failed)
}

func writeToolchains(sb *strings.Builder, r *RunReport) {
	if r.Reference.Label == "" && r.Candidate.Label == "" {
		return
	}

	sb.WriteString("## Toolchains\n\n")
	sb.WriteString("| Role | Label |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Reference | %s |\n", r.Reference.Label)
	fmt.Fprintf(sb, "| Candidate | %s |\n", r.Candidate.Label)
	sb.WriteByte('\n')
}

var verdictOrder = []verdict.Kind{
	verdict.KindPass,
	verdict.KindBuildFailed,
	verdict.KindExitCodeMismatch,
	verdict.KindOutputMismatch,
	verdict.KindLaunchFailed,
	verdict.KindTimeout,
	verdict.KindError,
}

func writeVerdictBreakdown(sb *strings.Builder, r *RunReport) {
	if len(r.Cases) == 0 {
		return
	}

	counts := make(map[verdict.Kind]int, len(verdictOrder))
	for _, c := range r.Cases {
		counts[c.Verdict.Kind]++
	}

	sb.WriteString("## Verdicts\n\n")
	sb.WriteString("| Verdict | Cases |\n")
	sb.WriteString("|---|---|\n")

	for _, kind := range verdictOrder {
		if counts[kind] == 0 {
			continue
		}

		fmt.Fprintf(sb, "| %s | %d |\n", kind, counts[kind])
	}

	sb.WriteByte('\n')
}

func writeSystem(sb *strings.Builder, sys *sysinfo.Info) {
	if sys == nil {
		return
	}

	sb.WriteString("## System\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if sys.Hostname != "" {
		fmt.Fprintf(sb, "| Hostname | %s |\n", sys.Hostname)
	}

	if sys.CPUModel != "" {
		fmt.Fprintf(sb, "| CPU | %s |\n", sys.CPUModel)
	}

	if sys.CPUCores > 0 {
		fmt.Fprintf(sb, "| Cores | %d |\n", sys.CPUCores)
	}

	if sys.MemoryTotalBytes > 0 {
		fmt.Fprintf(sb, "| Memory | %s |\n", units.BytesSize(float64(sys.MemoryTotalBytes)))
	}

	if sys.Platform != "" {
		platform := sys.Platform
		if sys.PlatformVersion != "" {
			platform += " " + sys.PlatformVersion
		}

		fmt.Fprintf(sb, "| Platform | %s |\n", platform)
	}

	if sys.OS != "" {
		fmt.Fprintf(sb, "| OS | %s |\n", sys.OS)
	}

	if sys.Arch != "" {
		fmt.Fprintf(sb, "| Arch | %s |\n", sys.Arch)
	}

	if sys.KernelVersion != "" {
		fmt.Fprintf(sb, "| Kernel | %s |\n", sys.KernelVersion)
	}

	sb.WriteByte('\n')
}

func writeFailedCases(sb *strings.Builder, failed []CaseResult, maxChars int) {
	if len(failed) == 0 {
		return
	}

	sb.WriteString("## Failed Tests\n\n")
	sb.WriteString("| Test | Reason | Reference | Candidate |\n")
	sb.WriteString("|---|---|---|---|\n")

	// Reserve space for the truncation message.
	const reserveChars = 100

	for i, c := range failed {
		row := fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeCell(c.Case.Name),
			escapeCell(c.Verdict.String()),
			formatRun(c.ReferenceRun),
			formatRun(c.CandidateRun),
		)

		if maxChars > 0 && sb.Len()+len(row)+reserveChars > maxChars {
			remaining := len(failed) - i
			fmt.Fprintf(sb,
				"\n*%d more failed test(s) not shown "+
					"(output truncated at %d chars)*\n",
				remaining, maxChars)

			return
		}

		sb.WriteString(row)
	}
}

// formatRun summarizes an execution as exit code and stdout size.
func formatRun(res *execrun.Result) string {
	if res == nil {
		return "-"
	}

	if res.TimedOut {
		return "timed out"
	}

	return fmt.Sprintf("exit %d, %s stdout", res.ExitCode, units.HumanSize(float64(len(res.Stdout))))
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)

	return strings.ReplaceAll(s, "\n", " ")
}

// formatDuration formats a time.Duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}

	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	return fmt.Sprintf("%ds", seconds)
}
