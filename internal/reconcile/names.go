package reconcile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/termfx/covmatrix/core"
)

const (
	// NameSeparator joins class and method in canonical test names
	NameSeparator = "::"
	// FileSeparator joins class and method in report file names
	FileSeparator = "___"
	reportSuffix  = ".xml"
)

// splitPieces splits s around sep and drops trailing empty pieces. When sep
// does not occur, the result is s itself.
func splitPieces(s, sep string) []string {
	if !strings.Contains(s, sep) {
		return []string{s}
	}
	parts := strings.Split(s, sep)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// Shape classifies one line of the all-tests file
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeCanonical
	ShapeLegacy
)

// Classify returns the canonical form of line and the shape it was read in.
// Legacy lines look like "method(Class)" and become "Class::method".
func Classify(line string) (string, Shape, error) {
	if parts := splitPieces(line, "("); len(parts) > 1 {
		method, class := parts[0], parts[1]
		if class == "" {
			return "", ShapeLegacy, fmt.Errorf("legacy test name %q has no class", line)
		}
		// the closing parenthesis is the last character of the class piece
		class = class[:len(class)-1]
		return class + NameSeparator + method, ShapeLegacy, nil
	}
	if parts := splitPieces(line, NameSeparator); len(parts) > 1 {
		return line, ShapeCanonical, nil
	}
	return "", ShapeUnknown, nil
}

// PartialName rebuilds "Class::method" from a report path such as
// reports/Foo___bar.xml. When the file name lacks a method segment the
// returned name ends in "::" and the error wraps core.ErrMissingSeparator.
func PartialName(reportPath string) (string, error) {
	raw := strings.ReplaceAll(filepath.Base(reportPath), reportSuffix, "")
	parts := splitPieces(raw, FileSeparator)

	var class, method string
	if len(parts) > 0 {
		class = parts[0]
	}
	var err error
	if len(parts) > 1 {
		method = parts[1]
	} else {
		err = fmt.Errorf("%w: %s", core.ErrMissingSeparator, raw)
	}
	return class + NameSeparator + method, err
}

// Match returns the first name containing partial
func Match(names []string, partial string) (string, bool) {
	for _, name := range names {
		if strings.Contains(name, partial) {
			return name, true
		}
	}
	return "", false
}
