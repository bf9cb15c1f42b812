package models

import (
	"time"

	"gorm.io/datatypes"
)

// Run records one coverage matrix generation
type Run struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	ProjectID string `gorm:"type:varchar(100);not null;index"`
	Level     string `gorm:"type:varchar(10);not null"` // method or line

	// Matrix shape
	Tests int `gorm:"not null;default:0"`
	Width int `gorm:"not null;default:0"` // elements per vector, excluding the cumulative slot

	// Outputs
	MatrixPath  string `gorm:"type:varchar(1024)"`
	MappingPath string `gorm:"type:varchar(1024)"`
	Mapped      int    `gorm:"default:0"` // reports resolved to a canonical name

	// Degradations
	Mismatches        int            `gorm:"default:0"`
	Failures          int            `gorm:"default:0"`
	MismatchedReports datatypes.JSON `gorm:"type:jsonb"` // report paths
	TestsRewritten    bool           `gorm:"default:false"`

	StartedAt  time.Time `gorm:"autoCreateTime;index"`
	DurationMS int64

	// Relationships
	Reports []ReportRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// ReportRecord stores how one report was scored during a run
type ReportRecord struct {
	ID       uint   `gorm:"primaryKey"`
	RunID    string `gorm:"type:varchar(36);not null;index"`
	Position int    `gorm:"not null"` // column in the matrix

	Path       string         `gorm:"type:varchar(1024);not null"`
	TestName   string         `gorm:"type:varchar(512)"`
	Observed   int            `gorm:"not null"` // relevant elements found in this report
	Cumulative int            `gorm:"not null"`
	Vector     datatypes.JSON `gorm:"type:jsonb"`
	Error      string         `gorm:"type:text"`
}

// TableName customizations for cleaner names
func (Run) TableName() string          { return "runs" }
func (ReportRecord) TableName() string { return "run_reports" }
