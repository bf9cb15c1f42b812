// Package matrix serializes coverage vectors as a transposed text matrix.
//
// Each output line corresponds to one vector index and lists every test's
// value at that index, followed by the number of tests that covered it. The
// final line carries each test's own cumulative count; its trailing total is
// always 0 because those values are counts, not coverage marks.
package matrix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/termfx/covmatrix/core"
)

// Format renders m. All vectors must share the length of the first one.
func Format(m core.Matrix) (string, error) {
	if len(m) == 0 {
		return "", nil
	}

	rows := len(m[0])
	for j, v := range m {
		if len(v) != rows {
			return "", fmt.Errorf("vector %d has %d entries, want %d", j, len(v), rows)
		}
	}

	var b strings.Builder
	for i := 0; i < rows; i++ {
		lastRow := i == rows-1
		covered := 0
		for _, v := range m {
			b.WriteString(strconv.Itoa(v[i]))
			b.WriteByte(' ')
			if v[i] == 1 && !lastRow {
				covered++
			}
		}
		b.WriteString(strconv.Itoa(covered))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Writer persists formatted matrices
type Writer struct {
	files *core.AtomicWriter
}

// NewWriter creates a matrix writer backed by an atomic file writer
func NewWriter(files *core.AtomicWriter) *Writer {
	if files == nil {
		files = core.NewAtomicWriter(core.DefaultAtomicConfig())
	}
	return &Writer{files: files}
}

// Write formats m and replaces the file at path
func (w *Writer) Write(path string, m core.Matrix) error {
	content, err := Format(m)
	if err != nil {
		return fmt.Errorf("format coverage matrix: %w", err)
	}
	if _, err := w.files.WriteFile(path, content); err != nil {
		return fmt.Errorf("write coverage matrix: %w", err)
	}
	return nil
}
