// Package pipeline builds coverage matrices from a project's report directory.
//
// A run locates reports, reconciles test names, takes the element width from
// the first report, scores every report against it and writes the matrix.
// Reports are processed one at a time. Failures in any stage are logged and
// the run continues on the data it has; only a cancelled context, an unknown
// level or, in strict mode, a misaligned report make Run return an error.
package pipeline

import (
	"context"
	"fmt"
	"time"

	charm "github.com/charmbracelet/log"

	"github.com/termfx/covmatrix/core"
	"github.com/termfx/covmatrix/internal/config"
	"github.com/termfx/covmatrix/internal/granularity"
	"github.com/termfx/covmatrix/internal/history"
	"github.com/termfx/covmatrix/internal/logging"
	"github.com/termfx/covmatrix/internal/matrix"
	"github.com/termfx/covmatrix/internal/metrics"
	"github.com/termfx/covmatrix/internal/reconcile"
	"github.com/termfx/covmatrix/models"
)

// Result describes a completed run
type Result struct {
	Level       core.Level
	Reports     []string
	Width       int
	Extractions []core.Extraction
	Matrix      core.Matrix
	Reconcile   reconcile.Result
	Mismatched  []string
	MatrixPath  string
	Written     bool        // matrix file was replaced
	Run         *models.Run // nil without a history store
}

// Pipeline wires the stages together for one project
type Pipeline struct {
	cfg        *config.Config
	locator    *core.ReportLocator
	reconciler *reconcile.Reconciler
	writer     *matrix.Writer
	store      *history.Store
	log        *charm.Logger
}

// New creates a pipeline for cfg. A nil logger uses the global one.
func New(cfg *config.Config, log *charm.Logger) *Pipeline {
	log = logging.Or(log)
	return &Pipeline{
		cfg:        cfg,
		locator:    core.NewReportLocator(),
		reconciler: reconcile.NewReconciler(log),
		writer:     matrix.NewWriter(nil),
		log:        log,
	}
}

// WithStore records every run in store
func (p *Pipeline) WithStore(store *history.Store) *Pipeline {
	p.store = store
	return p
}

// locate returns the report paths, or none when the directory is unusable
func (p *Pipeline) locate(ctx context.Context) ([]string, error) {
	reports, err := p.locator.Locate(ctx, p.cfg.Scope())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.log.Error("discovering coverage reports", "dir", p.cfg.Scope().Path, "err", err)
		return nil, nil
	}
	p.log.Debug("located coverage reports", "dir", p.cfg.Scope().Path, "count", len(reports))
	return reports, nil
}

// Reconcile normalizes the all-tests file and rewrites the id/name mapping
// without building a matrix.
func (p *Pipeline) Reconcile(ctx context.Context) (reconcile.Result, error) {
	reports, err := p.locate(ctx)
	if err != nil {
		return reconcile.Result{}, err
	}
	paths := p.cfg.Paths()
	return p.reconciler.Reconcile(ctx, paths.AllTestsFile(), paths.MappingFile(), reports), nil
}

// Run builds and writes the coverage matrix for level
func (p *Pipeline) Run(ctx context.Context, level core.Level) (*Result, error) {
	g, err := granularity.New(level)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	paths := p.cfg.Paths()
	res := &Result{Level: level, MatrixPath: paths.MatrixFile(level)}

	res.Reports, err = p.locate(ctx)
	if err != nil {
		return res, err
	}

	res.Reconcile = p.reconciler.Reconcile(ctx, paths.AllTestsFile(), paths.MappingFile(), res.Reports)

	if len(res.Reports) == 0 {
		p.log.Warn(core.ErrNoReports.Error(), "dir", p.cfg.Scope().Path)
	} else {
		res.Width, err = g.ElementCount(res.Reports[0])
		if err != nil {
			p.log.Error("counting coverage elements", "report", res.Reports[0], "err", err)
		}
		p.log.Info("element ordering", "level", level, "report", res.Reports[0], "width", res.Width)
	}

	for _, report := range res.Reports {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ex := g.Extract(report, res.Width)
		if ex.Err != nil {
			p.log.Warn("scoring coverage report", "report", report, "err", ex.Err)
		}
		if ex.Mismatched() {
			res.Mismatched = append(res.Mismatched, report)
			p.log.Warn("report element count differs from ordering",
				"report", report, "observed", ex.Observed, "width", res.Width)
		}
		res.Extractions = append(res.Extractions, ex)
		res.Matrix = append(res.Matrix, ex.Vector)
	}

	if err := p.writer.Write(res.MatrixPath, res.Matrix); err != nil {
		p.log.Error("writing coverage matrix", "path", res.MatrixPath, "err", err)
	} else {
		res.Written = true
		p.log.Info("wrote coverage matrix", "path", res.MatrixPath, "tests", len(res.Matrix), "width", res.Width)
	}

	if p.store != nil {
		res.Run, err = p.store.SaveRun(ctx, history.Entry{
			ProjectID:   p.cfg.ProjectID,
			Level:       level,
			Width:       res.Width,
			Extractions: res.Extractions,
			TestNames:   testNames(res.Reconcile.Assignments, len(res.Extractions)),
			MatrixPath:  res.MatrixPath,
			MappingPath: paths.MappingFile(),
			Rewritten:   res.Reconcile.Rewritten,
			StartedAt:   started,
			Duration:    time.Since(started),
		})
		if err != nil {
			p.log.Error("recording run history", "err", err)
		}
	}

	if p.cfg.MetricsFile != "" {
		p.writeMetrics(res, time.Since(started))
	}

	if p.cfg.Strict && len(res.Mismatched) > 0 {
		return res, fmt.Errorf("%w: %d of %d reports", core.ErrElementMismatch, len(res.Mismatched), len(res.Reports))
	}
	return res, nil
}

func (p *Pipeline) writeMetrics(res *Result, elapsed time.Duration) {
	failures := 0
	for _, ex := range res.Extractions {
		if ex.Err != nil {
			failures++
		}
	}

	rec := metrics.NewRecorder()
	rec.Observe(metrics.RunStats{
		ProjectID:  p.cfg.ProjectID,
		Level:      string(res.Level),
		Tests:      len(res.Extractions),
		Width:      res.Width,
		Mapped:     len(res.Reconcile.Mapping),
		Mismatched: len(res.Mismatched),
		Failures:   failures,
		Duration:   elapsed,
		Finished:   time.Now(),
	})
	if err := rec.WriteTextfile(p.cfg.MetricsFile); err != nil {
		p.log.Error("exporting run metrics", "path", p.cfg.MetricsFile, "err", err)
		return
	}
	p.log.Debug("exported run metrics", "path", p.cfg.MetricsFile)
}

// testNames lines assignments up with extractions by position
func testNames(assignments []reconcile.Assignment, n int) []string {
	names := make([]string, n)
	for i := 0; i < n && i < len(assignments); i++ {
		names[i] = assignments[i].Name
	}
	return names
}
