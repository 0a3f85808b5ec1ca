package report

import (
	"bufio"
	"fmt"
	"io"
)

// RenderText writes the operator facing summary of a run:
//
//	K out of N tests succeeded:
//
//	Successful tests:
//	<name>
//
//	Failed tests:
//	<name>: <reason>
//
// N counts every discovered case. Empty lists are omitted.
func RenderText(w io.Writer, r *RunReport) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%d out of %d tests succeeded:\n", r.Passed, r.Discovered)

	if r.Interrupted {
		fmt.Fprintf(bw, "Run %d of %d discovered tests (interrupted)\n", r.Run, r.Discovered)
	}

	if successful := r.Successful(); len(successful) > 0 {
		bw.WriteString("\nSuccessful tests:\n")

		for _, c := range successful {
			fmt.Fprintf(bw, "%s\n", c.Case.Name)
		}
	}

	if failed := r.FailedCases(); len(failed) > 0 {
		bw.WriteString("\nFailed tests:\n")

		for _, c := range failed {
			fmt.Fprintf(bw, "%s: %s\n", c.Case.Name, c.Verdict)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}
