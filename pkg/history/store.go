package history

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/ethpandaops/difftestoor/pkg/report"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store persists run outcomes for later inspection. The harness never reads
// from it.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// RecordRun stores a run and its case verdicts, replacing any earlier
	// record of the same run ID.
	RecordRun(ctx context.Context, rep *report.RunReport) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListCases(ctx context.Context, runID string) ([]CaseRecord, error)
	// CaseHistory returns the most recent verdicts of one case across runs.
	CaseHistory(ctx context.Context, name string, limit int) ([]CaseRecord, error)
}

// Ensure interface compliance.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.HistoryConfig
	db  *gorm.DB
}

// NewStore creates a new history Store backed by the configured driver.
func NewStore(log logrus.FieldLogger, cfg *config.HistoryConfig) Store {
	return &store{
		log: log.WithField("component", "history"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Run{}, &CaseRecord{}); err != nil {
		return fmt.Errorf("running history migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Debug("History database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// RecordRun upserts the run row and replaces its case rows in one
// transaction.
func (s *store) RecordRun(ctx context.Context, rep *report.RunReport) error {
	run := &Run{
		RunID:          rep.RunID,
		StartedAt:      rep.StartedAt,
		FinishedAt:     rep.FinishedAt,
		ReferenceLabel: rep.Reference.Label,
		CandidateLabel: rep.Candidate.Label,
		Discovered:     rep.Discovered,
		Executed:       rep.Run,
		Passed:         rep.Passed,
		Failed:         rep.Failed,
		Interrupted:    rep.Interrupted,
		RecordedAt:     time.Now().UTC(),
	}

	cases := make([]*CaseRecord, 0, len(rep.Cases))
	for _, c := range rep.Cases {
		cases = append(cases, &CaseRecord{
			RunID:      rep.RunID,
			Name:       c.Case.Name,
			Kind:       string(c.Verdict.Kind),
			Toolchain:  string(c.Verdict.Toolchain),
			Reason:     c.Verdict.String(),
			DurationNs: c.Duration.Nanoseconds(),
		})
	}

	const batchSize = 100

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			UpdateAll: true,
		}).Create(run).Error; err != nil {
			return fmt.Errorf("upserting run: %w", err)
		}

		if err := tx.Where("run_id = ?", run.RunID).Delete(&CaseRecord{}).Error; err != nil {
			return fmt.Errorf("deleting previous cases: %w", err)
		}

		if len(cases) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(cases, batchSize).Error; err != nil {
			return fmt.Errorf("inserting cases: %w", err)
		}

		return nil
	})
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (s *store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListCases returns the case verdicts of one run ordered by name.
func (s *store) ListCases(ctx context.Context, runID string) ([]CaseRecord, error) {
	var cases []CaseRecord
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("name ASC").
		Find(&cases).Error; err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}

	return cases, nil
}

// CaseHistory returns the verdicts of the named case, newest run first.
func (s *store) CaseHistory(ctx context.Context, name string, limit int) ([]CaseRecord, error) {
	q := s.db.WithContext(ctx).
		Model(&CaseRecord{}).
		Joins("JOIN runs ON runs.run_id = case_records.run_id").
		Where("case_records.name = ?", name).
		Order("runs.started_at DESC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	var cases []CaseRecord
	if err := q.Select("case_records.*").Find(&cases).Error; err != nil {
		return nil, fmt.Errorf("listing case history: %w", err)
	}

	return cases, nil
}
