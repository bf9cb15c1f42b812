// Package reconcile normalizes the all-tests list and maps every coverage
// report to its canonical test name.
package reconcile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	charm "github.com/charmbracelet/log"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/termfx/covmatrix/core"
	"github.com/termfx/covmatrix/internal/logging"
)

// TestList is the parsed content of an all-tests file
type TestList struct {
	Names    []string // canonical names, in file order
	Original string   // file content as read
	Legacy   bool     // at least one legacy line was converted
	Skipped  []string // non-empty lines matching neither shape
	Rejected []error  // legacy-looking lines that could not be converted
}

// Content renders the list in the on-disk canonical form
func (tl TestList) Content() string {
	return strings.Join(tl.Names, "\n")
}

// Result describes one reconciliation
type Result struct {
	Tests       TestList
	Rewritten   bool
	BackupPath  string
	Diff        string
	Assignments []Assignment
	Mapping     []string // one canonical name per matched report
	Unmatched   []string // report paths with no canonical name
}

// Reconciler rewrites legacy all-tests files and writes the id/name mapping
type Reconciler struct {
	writer *core.AtomicWriter
	backup *core.AtomicWriter
	log    *charm.Logger
}

// NewReconciler creates a reconciler. A nil logger uses the global one.
func NewReconciler(log *charm.Logger) *Reconciler {
	backupCfg := core.DefaultAtomicConfig()
	backupCfg.BackupOriginal = true
	return &Reconciler{
		writer: core.NewAtomicWriter(core.DefaultAtomicConfig()),
		backup: core.NewAtomicWriter(backupCfg),
		log:    logging.Or(log),
	}
}

// LoadTestNames reads the all-tests file at path. Names read before an I/O
// error are returned together with the error.
func LoadTestNames(path string) (TestList, error) {
	var tl TestList

	f, err := os.Open(path)
	if err != nil {
		return tl, fmt.Errorf("open all-tests file: %w", err)
	}
	defer f.Close()

	var original strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		original.WriteString(line)
		original.WriteByte('\n')
		if line == "" {
			continue
		}

		name, shape, err := Classify(line)
		if err != nil {
			tl.Rejected = append(tl.Rejected, err)
			continue
		}
		switch shape {
		case ShapeLegacy:
			tl.Legacy = true
			tl.Names = append(tl.Names, name)
		case ShapeCanonical:
			tl.Names = append(tl.Names, name)
		default:
			tl.Skipped = append(tl.Skipped, line)
		}
	}
	tl.Original = original.String()

	if err := scanner.Err(); err != nil {
		return tl, fmt.Errorf("read all-tests file: %w", err)
	}
	return tl, nil
}

// Assignment links one report to its canonical test name
type Assignment struct {
	Report  string
	Partial string
	Name    string // empty when Matched is false
	Matched bool
}

// Assign resolves each report to the first canonical name containing its
// partial name, preserving report order.
func (r *Reconciler) Assign(names, reports []string) []Assignment {
	out := make([]Assignment, 0, len(reports))
	for _, report := range reports {
		partial, err := PartialName(report)
		if err != nil {
			r.log.Warn("cannot derive test name from report", "report", report, "err", err)
		}

		a := Assignment{Report: report, Partial: partial}
		a.Name, a.Matched = Match(names, partial)
		if !a.Matched {
			r.log.Debug("no canonical test name for report", "report", report, "partial", partial)
		}
		out = append(out, a)
	}
	return out
}

// MappingLines returns the names of matched assignments. Unmatched reports
// contribute no line.
func MappingLines(assignments []Assignment) []string {
	lines := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if a.Matched {
			lines = append(lines, a.Name)
		}
	}
	return lines
}

// FormatMapping renders mapping lines, each terminated by a newline
func FormatMapping(mapping []string) string {
	var b strings.Builder
	for _, name := range mapping {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return b.String()
}

// Reconcile normalizes the all-tests file, rewriting it when legacy lines
// were found, and writes the mapping for reports. Failures are logged and the
// run continues with whatever was read.
func (r *Reconciler) Reconcile(ctx context.Context, allTestsPath, mappingPath string, reports []string) Result {
	var res Result

	tl, err := LoadTestNames(allTestsPath)
	if err != nil {
		r.log.Error("reading all-tests file", "path", allTestsPath, "err", err)
	}
	for _, err := range tl.Rejected {
		r.log.Warn("cannot convert legacy test name", "path", allTestsPath, "err", err)
	}
	for _, line := range tl.Skipped {
		r.log.Debug("skipping unrecognized test name", "line", line)
	}
	res.Tests = tl

	if tl.Legacy {
		res.Diff = rewriteDiff(tl.Original, tl.Content(), allTestsPath)
		backupPath, err := r.backup.WriteFile(allTestsPath, tl.Content())
		res.BackupPath = backupPath
		if err != nil {
			r.log.Error("rewriting all-tests file", "path", allTestsPath, "err", err)
		} else {
			res.Rewritten = true
			r.log.Info("normalized legacy test names", "path", allTestsPath, "names", len(tl.Names), "backup", backupPath)
			if res.Diff != "" {
				r.log.Debug("all-tests rewrite", "diff", res.Diff)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		r.log.Warn("reconciliation interrupted", "err", err)
		return res
	}

	res.Assignments = r.Assign(tl.Names, reports)
	res.Mapping = MappingLines(res.Assignments)
	for _, a := range res.Assignments {
		if !a.Matched {
			res.Unmatched = append(res.Unmatched, a.Report)
		}
	}
	if _, err := r.writer.WriteFile(mappingPath, FormatMapping(res.Mapping)); err != nil {
		r.log.Error("writing id/name mapping", "path", mappingPath, "err", err)
	}
	if len(res.Unmatched) > 0 {
		r.log.Warn("reports without canonical test name", "count", len(res.Unmatched))
	}
	return res
}

// rewriteDiff returns a unified diff between the original and rewritten list
func rewriteDiff(original, rewritten, path string) string {
	if original == rewritten {
		return ""
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(rewritten),
		FromFile: path,
		ToFile:   path + " (canonical)",
		Context:  3,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("--- %s\n+++ %s (canonical)\n@@ changes @@\n%d bytes -> %d bytes",
			path, path, len(original), len(rewritten))
	}
	return text
}
