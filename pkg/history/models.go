package history

import "time"

// Run is one recorded harness invocation.
type Run struct {
	ID             uint      `gorm:"primaryKey"`
	RunID          string    `gorm:"not null;uniqueIndex"`
	StartedAt      time.Time `gorm:"index"`
	FinishedAt     time.Time
	ReferenceLabel string
	CandidateLabel string `gorm:"index"`

	// Denormalized case counts.
	Discovered  int
	Executed    int
	Passed      int
	Failed      int
	Interrupted bool

	RecordedAt time.Time
}

// CaseRecord is the verdict of one test case within a run.
type CaseRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"not null;uniqueIndex:idx_cases_run_name"`
	Name       string `gorm:"not null;uniqueIndex:idx_cases_run_name;index"`
	Kind       string `gorm:"index"`
	Toolchain  string
	Reason     string `gorm:"type:text"`
	DurationNs int64
}
