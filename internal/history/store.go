// Package history persists coverage matrix runs for later inspection.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/termfx/covmatrix/core"
	"github.com/termfx/covmatrix/models"
)

// Entry is everything a run produced that is worth keeping
type Entry struct {
	ProjectID   string
	Level       core.Level
	Width       int
	Extractions []core.Extraction
	TestNames   []string // per extraction, empty when unmatched
	MatrixPath  string
	MappingPath string
	Rewritten   bool
	StartedAt   time.Time
	Duration    time.Duration
}

// Store reads and writes run history
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open, migrated database
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SaveRun records e and returns the stored run
func (s *Store) SaveRun(ctx context.Context, e Entry) (*models.Run, error) {
	run := &models.Run{
		ID:             uuid.NewString(),
		ProjectID:      e.ProjectID,
		Level:          string(e.Level),
		Tests:          len(e.Extractions),
		Width:          e.Width,
		MatrixPath:     e.MatrixPath,
		MappingPath:    e.MappingPath,
		TestsRewritten: e.Rewritten,
		DurationMS:     e.Duration.Milliseconds(),
	}
	if !e.StartedAt.IsZero() {
		run.StartedAt = e.StartedAt
	}

	mismatched := []string{}
	for i, ex := range e.Extractions {
		vector, err := json.Marshal(ex.Vector)
		if err != nil {
			return nil, fmt.Errorf("encode vector for %s: %w", ex.Path, err)
		}

		rec := models.ReportRecord{
			Position:   i,
			Path:       ex.Path,
			Observed:   ex.Observed,
			Cumulative: ex.Vector.Cumulative(),
			Vector:     datatypes.JSON(vector),
		}
		if i < len(e.TestNames) {
			rec.TestName = e.TestNames[i]
			if rec.TestName != "" {
				run.Mapped++
			}
		}
		if ex.Err != nil {
			rec.Error = ex.Err.Error()
			run.Failures++
		}
		if ex.Mismatched() {
			run.Mismatches++
			mismatched = append(mismatched, ex.Path)
		}
		run.Reports = append(run.Reports, rec)
	}

	paths, err := json.Marshal(mismatched)
	if err != nil {
		return nil, fmt.Errorf("encode mismatched reports: %w", err)
	}
	run.MismatchedReports = datatypes.JSON(paths)

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. An empty project lists
// every project; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, projectID string, limit int) ([]models.Run, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []models.Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun loads a run with its reports in matrix column order
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	err := s.db.WithContext(ctx).
		Preload("Reports", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&run, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}
