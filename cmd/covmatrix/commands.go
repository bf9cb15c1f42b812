package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/termfx/covmatrix/core"
	"github.com/termfx/covmatrix/db"
	"github.com/termfx/covmatrix/internal/config"
	"github.com/termfx/covmatrix/internal/history"
	"github.com/termfx/covmatrix/internal/logging"
	"github.com/termfx/covmatrix/internal/pipeline"
	"github.com/termfx/covmatrix/models"
)

type app struct {
	cfg    *config.Config
	out    io.Writer
	errOut io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{cfg: config.LoadConfig(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "covmatrix",
		Short: "Build test-by-element coverage matrices from Cobertura reports",
		Long: `covmatrix reads <project>_files/<project>_coverage_reports/*.xml, one report per test,
and writes <project>_files/<project>_<level>_coverage_matrix.txt together with the
id/name mapping of every report to its canonical Class::method test name.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.SetDefault(logging.New(a.errOut, a.cfg.Verbose))
			return a.cfg.Validate()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfg.ProjectID, "project", "p", a.cfg.ProjectID, "project identifier used in every file name")
	flags.StringVarP(&a.cfg.Root, "root", "r", a.cfg.Root, "directory containing <project>_files")
	flags.StringVar(&a.cfg.DatabaseDSN, "db", a.cfg.DatabaseDSN, "run history database (SQLite path, :memory: or libsql URL)")
	flags.BoolVar(&a.cfg.Strict, "strict", a.cfg.Strict, "fail when a report's element count differs from the first report")
	flags.BoolVarP(&a.cfg.Verbose, "verbose", "v", a.cfg.Verbose, "enable debug logging")
	flags.StringSliceVar(&a.cfg.Include, "include", a.cfg.Include, "only use report files matching these globs")
	flags.StringSliceVar(&a.cfg.Exclude, "exclude", a.cfg.Exclude, "skip report files matching these globs")
	flags.BoolVar(&a.cfg.FollowSymlinks, "follow-symlinks", a.cfg.FollowSymlinks, "descend into symlinked report directories")
	flags.StringVar(&a.cfg.MetricsFile, "metrics-file", a.cfg.MetricsFile, "write run gauges to this Prometheus textfile")

	root.AddCommand(
		a.levelCommand(core.LevelMethod, "Build the method-level matrix (constructors and static initializers excluded)"),
		a.levelCommand(core.LevelLine, "Build the line-level matrix"),
		a.reconcileCommand(),
		a.historyCommand(),
	)
	return root
}

// openStore connects the history store when a DSN is configured
func (a *app) openStore() (*history.Store, func(), error) {
	if a.cfg.DatabaseDSN == "" {
		return nil, func() {}, nil
	}
	conn, err := db.Connect(a.cfg.DatabaseDSN, a.cfg.Verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("opening run history: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return history.NewStore(conn), closeFn, nil
}

func (a *app) levelCommand(level core.Level, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(level),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			p := pipeline.New(a.cfg, logging.Default())
			if store != nil {
				p.WithStore(store)
			}

			res, err := p.Run(cmd.Context(), level)
			if res != nil {
				fmt.Fprintf(a.out, "%s: %d tests x %d %s elements, %d mapped, %d mismatched\n",
					res.MatrixPath, len(res.Reports), res.Width, level,
					len(res.Reconcile.Mapping), len(res.Mismatched))
			}
			return err
		},
	}
}

func (a *app) reconcileCommand() *cobra.Command {
	var showDiff bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Normalize the all-tests file and rewrite the id/name mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := pipeline.New(a.cfg, logging.Default()).Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if showDiff && res.Diff != "" {
				fmt.Fprint(a.out, res.Diff)
			}
			paths := a.cfg.Paths()
			fmt.Fprintf(a.out, "%s: %d of %d reports mapped", paths.MappingFile(), len(res.Mapping), len(res.Assignments))
			if res.Rewritten {
				fmt.Fprintf(a.out, ", %s rewritten", paths.AllTestsFile())
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showDiff, "diff", "D", false, "print a unified diff of the all-tests rewrite")
	return cmd
}

// runRow is the serialized form of a recorded run
type runRow struct {
	ID         string    `json:"id" yaml:"id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	Project    string    `json:"project" yaml:"project"`
	Level      string    `json:"level" yaml:"level"`
	Tests      int       `json:"tests" yaml:"tests"`
	Width      int       `json:"width" yaml:"width"`
	Mapped     int       `json:"mapped" yaml:"mapped"`
	Mismatched int       `json:"mismatched" yaml:"mismatched"`
	Failed     int       `json:"failed" yaml:"failed"`
	Duration   string    `json:"duration" yaml:"duration"`
	Matrix     string    `json:"matrix" yaml:"matrix"`
}

func newRunRow(r models.Run) runRow {
	return runRow{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		Project:    r.ProjectID,
		Level:      r.Level,
		Tests:      r.Tests,
		Width:      r.Width,
		Mapped:     r.Mapped,
		Mismatched: r.Mismatches,
		Failed:     r.Failures,
		Duration:   (time.Duration(r.DurationMS) * time.Millisecond).String(),
		Matrix:     r.MatrixPath,
	}
}

func (a *app) historyCommand() *cobra.Command {
	var (
		limit  int
		all    bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs (requires --db)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.DatabaseDSN == "" {
				return fmt.Errorf("history requires --db or COVMATRIX_DB_DSN")
			}
			switch output {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unknown output format %q (want table, json or yaml)", output)
			}

			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			project := a.cfg.ProjectID
			if all {
				project = ""
			}
			runs, err := store.ListRuns(cmd.Context(), project, limit)
			if err != nil {
				return err
			}

			rows := make([]runRow, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, newRunRow(r))
			}

			switch output {
			case "json":
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			case "yaml":
				enc := yaml.NewEncoder(a.out)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(rows)
			}

			tbl := table.NewWriter()
			tbl.SetOutputMirror(a.out)
			tbl.SetStyle(table.StyleLight)
			tbl.AppendHeader(table.Row{"Run", "Started", "Project", "Level", "Tests", "Width", "Mapped", "Mismatched", "Failed", "Took"})
			for _, r := range rows {
				tbl.AppendRow(table.Row{
					r.ID, humanize.Time(r.StartedAt), r.Project, r.Level,
					r.Tests, r.Width, r.Mapped, r.Mismatched, r.Failed, r.Duration,
				})
			}
			tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d runs", len(rows))})
			tbl.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show (0 = all)")
	cmd.Flags().BoolVar(&all, "all-projects", false, "include runs of every project")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}
