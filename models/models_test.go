package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Run{}, &ReportRecord{}))
	return db
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "runs", Run{}.TableName())
	assert.Equal(t, "run_reports", ReportRecord{}.TableName())
}

func TestRunModel(t *testing.T) {
	db := setupTestDB(t)

	mismatched, err := json.Marshal([]string{"r/Foo___baz.xml"})
	require.NoError(t, err)
	vector, err := json.Marshal([]int{1, 0, 1, 2})
	require.NoError(t, err)

	run := Run{
		ID:                "run-1",
		ProjectID:         "math",
		Level:             "method",
		Tests:             2,
		Width:             3,
		Mismatches:        1,
		MismatchedReports: datatypes.JSON(mismatched),
		Reports: []ReportRecord{
			{Position: 0, Path: "r/Foo___bar.xml", Observed: 3, Cumulative: 2, Vector: datatypes.JSON(vector)},
			{Position: 1, Path: "r/Foo___baz.xml", Observed: 4, Error: "covered element 3 beyond width 3"},
		},
	}
	require.NoError(t, db.Create(&run).Error)

	var loaded Run
	require.NoError(t, db.Preload("Reports", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).First(&loaded, "id = ?", "run-1").Error)

	assert.Equal(t, 3, loaded.Width)
	require.Len(t, loaded.Reports, 2)
	assert.Equal(t, "run-1", loaded.Reports[1].RunID)

	var got []int
	require.NoError(t, json.Unmarshal(loaded.Reports[0].Vector, &got))
	assert.Equal(t, []int{1, 0, 1, 2}, got)

	var paths []string
	require.NoError(t, json.Unmarshal(loaded.MismatchedReports, &paths))
	assert.Equal(t, []string{"r/Foo___baz.xml"}, paths)
}

func TestRunModel_DuplicateID(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Create(&Run{ID: "dup", ProjectID: "lang", Level: "line"}).Error)
	assert.Error(t, db.Create(&Run{ID: "dup", ProjectID: "lang", Level: "line"}).Error)
}
