package core

import (
	"errors"
	"fmt"
)

// Level selects which coverage elements become matrix rows
type Level string

const (
	LevelMethod Level = "method"
	LevelLine   Level = "line"
)

// ParseLevel converts a user supplied level name into a Level
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelMethod, LevelLine:
		return Level(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// Vector is one test's coverage row: width marks followed by the cumulative count
type Vector []int

// Width returns the number of element positions, excluding the cumulative slot
func (v Vector) Width() int {
	if len(v) == 0 {
		return 0
	}
	return len(v) - 1
}

// Cumulative returns the trailing hit count
func (v Vector) Cumulative() int {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}

// Matrix holds one Vector per report, in locator order
type Matrix []Vector

// ReportScope defines which files the report locator returns
type ReportScope struct {
	Path           string   `json:"path"`                // Root coverage-report directory
	Include        []string `json:"include,omitempty"`   // File patterns to include (*.xml, **/*.xml)
	Exclude        []string `json:"exclude,omitempty"`   // File patterns to exclude
	MaxDepth       int      `json:"max_depth,omitempty"` // Max directory depth (0 = unlimited)
	FollowSymlinks bool     `json:"follow_symlinks"`     // Follow symlinked directories
}

// Extraction is the outcome of scoring one report against the element ordering
type Extraction struct {
	Path     string `json:"path"`
	Vector   Vector `json:"vector"`
	Observed int    `json:"observed"` // relevant elements seen in this report
	Err      error  `json:"-"`
}

// Mismatched reports whether the report exposed a different element count
// than the ordering. A report that could not be read has no count to compare.
func (e Extraction) Mismatched() bool {
	if errors.Is(e.Err, ErrUnreadableReport) {
		return false
	}
	return e.Observed != e.Vector.Width()
}
