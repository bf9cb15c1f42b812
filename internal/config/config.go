package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/termfx/covmatrix/core"
)

// DefaultProjectID is the project whose reports are processed when none is configured
const DefaultProjectID = "lang"

// Config holds the application's configuration.
type Config struct {
	ProjectID      string
	Root           string // directory containing <project>_files
	DatabaseDSN    string // run history store; empty disables it
	Strict         bool   // fail the run when a report's element count differs
	Verbose        bool
	Include        []string
	Exclude        []string
	FollowSymlinks bool
	MetricsFile    string // Prometheus textfile written after each matrix build
}

// LoadConfig loads configuration from the environment, after reading an
// optional .env file in the working directory.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ProjectID:   os.Getenv("COVMATRIX_PROJECT_ID"),
		Root:        os.Getenv("COVMATRIX_ROOT"),
		DatabaseDSN: os.Getenv("COVMATRIX_DB_DSN"),
		MetricsFile: os.Getenv("COVMATRIX_METRICS_FILE"),
	}

	if cfg.ProjectID == "" {
		cfg.ProjectID = DefaultProjectID
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}

	if strictStr := os.Getenv("COVMATRIX_STRICT"); strictStr != "" {
		if strict, err := strconv.ParseBool(strictStr); err == nil {
			cfg.Strict = strict
		}
	}

	if verboseStr := os.Getenv("COVMATRIX_VERBOSE"); verboseStr != "" {
		if verbose, err := strconv.ParseBool(verboseStr); err == nil {
			cfg.Verbose = verbose
		}
	}

	cfg.Include = splitList(os.Getenv("COVMATRIX_INCLUDE"))
	cfg.Exclude = splitList(os.Getenv("COVMATRIX_EXCLUDE"))

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects project identifiers that would escape the base directory
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if strings.ContainsAny(c.ProjectID, `/\`) || c.ProjectID == "." || c.ProjectID == ".." {
		return fmt.Errorf("invalid project id %q", c.ProjectID)
	}
	return nil
}

// Paths returns the file layout for the configured project
func (c *Config) Paths() Paths {
	return Paths{Root: c.Root, ProjectID: c.ProjectID}
}

// Scope returns the locator scope for the project's report directory
func (c *Config) Scope() core.ReportScope {
	return core.ReportScope{
		Path:           c.Paths().ReportDir(),
		Include:        c.Include,
		Exclude:        c.Exclude,
		FollowSymlinks: c.FollowSymlinks,
	}
}

// Paths derives every input and output location from a project identifier:
//
//	<root>/<project>_files/<project>_coverage_reports/
//	<root>/<project>_files/<project>_all_tests
//	<root>/<project>_files/<project>_id_name_mapping.txt
//	<root>/<project>_files/<project>_<level>_coverage_matrix.txt
type Paths struct {
	Root      string
	ProjectID string
}

func (p Paths) BaseDir() string {
	return filepath.Join(p.Root, p.ProjectID+"_files")
}

func (p Paths) ReportDir() string {
	return filepath.Join(p.BaseDir(), p.ProjectID+"_coverage_reports")
}

func (p Paths) AllTestsFile() string {
	return filepath.Join(p.BaseDir(), p.ProjectID+"_all_tests")
}

func (p Paths) MappingFile() string {
	return filepath.Join(p.BaseDir(), p.ProjectID+"_id_name_mapping.txt")
}

func (p Paths) MatrixFile(level core.Level) string {
	return filepath.Join(p.BaseDir(), fmt.Sprintf("%s_%s_coverage_matrix.txt", p.ProjectID, level))
}
