// Package granularity turns coverage reports into fixed-width coverage vectors.
//
// A Granularity knows which report elements form the matrix rows and which
// attribute says whether a test reached them. The element count is taken from
// a single representative report; every other report is scored against that
// width and the number of elements it actually exposed is returned alongside,
// so callers can detect misaligned reports.
package granularity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/termfx/covmatrix/core"
	"github.com/termfx/covmatrix/internal/xmlreport"
)

// Granularity is the capability the pipeline needs from a coverage level
type Granularity interface {
	Level() core.Level
	// ElementCount returns the number of relevant elements in the report. On
	// failure it returns the count reached so far together with the error.
	ElementCount(path string) (int, error)
	// Extract scores the report against width elements. The returned vector
	// always has width+1 entries; on failure it holds whatever was marked
	// before the error and Err is set.
	Extract(path string, width int) core.Extraction
}

// Constructor and static initializer names, never counted as methods
const (
	ConstructorName       = "<init>"
	StaticInitializerName = "<clinit>"
)

// element describes how one level reads a report
type element struct {
	level    core.Level
	tag      string
	metric   string
	named    bool
	excluded map[string]struct{}
}

// Method counts <method> elements, skipping constructors and static
// initializers, and marks those with a positive line-rate.
var Method Granularity = &element{
	level:  core.LevelMethod,
	tag:    "method",
	metric: "line-rate",
	named:  true,
	excluded: map[string]struct{}{
		ConstructorName:       {},
		StaticInitializerName: {},
	},
}

// Line counts every <line> element and marks those with positive hits.
var Line Granularity = &element{
	level:  core.LevelLine,
	tag:    "line",
	metric: "hits",
}

// New returns the Granularity for level
func New(level core.Level) (Granularity, error) {
	switch level {
	case core.LevelMethod:
		return Method, nil
	case core.LevelLine:
		return Line, nil
	}
	return nil, fmt.Errorf("%w: %q", core.ErrUnknownLevel, level)
}

func (e *element) Level() core.Level {
	return e.level
}

// relevant reports whether el takes a position in the ordering
func (e *element) relevant(el xmlreport.Element) (bool, error) {
	if !e.named {
		return true, nil
	}
	name, ok := el.Attr("name")
	if !ok {
		return false, fmt.Errorf("<%s> element without name attribute", e.tag)
	}
	_, skip := e.excluded[name]
	return !skip, nil
}

func (e *element) ElementCount(path string) (int, error) {
	doc, err := xmlreport.ParseFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrUnreadableReport, err)
	}

	count := 0
	for _, el := range doc.ElementsByTagName(e.tag) {
		ok, err := e.relevant(el)
		if err != nil {
			return count, fmt.Errorf("%s: %w: %w", path, core.ErrUnreadableReport, err)
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (e *element) Extract(path string, width int) core.Extraction {
	if width < 0 {
		width = 0
	}
	res := core.Extraction{Path: path, Vector: make(core.Vector, width+1)}

	doc, err := xmlreport.ParseFile(path)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", core.ErrUnreadableReport, err)
		return res
	}

	cumulative := 0
	for _, el := range doc.ElementsByTagName(e.tag) {
		ok, err := e.relevant(el)
		if err != nil {
			res.Err = fmt.Errorf("%s: %w: %w", path, core.ErrUnreadableReport, err)
			return res
		}
		if !ok {
			continue
		}

		// After the first failure the vector is frozen; keep counting so the
		// caller still learns how many elements the report has.
		if res.Err != nil {
			res.Observed++
			continue
		}

		raw, ok := el.Attr(e.metric)
		if !ok {
			res.Err = fmt.Errorf("%s: <%s> element %d without %s attribute", path, e.tag, res.Observed, e.metric)
			res.Observed++
			continue
		}
		value, err := parseFloat(raw)
		if err != nil {
			res.Err = fmt.Errorf("%s: <%s> element %d: invalid %s %q: %w", path, e.tag, res.Observed, e.metric, raw, err)
			res.Observed++
			continue
		}

		if value > 0 {
			if res.Observed >= width {
				res.Err = fmt.Errorf("%s: covered element %d beyond width %d: %w",
					path, res.Observed, width, core.ErrElementMismatch)
				res.Observed++
				continue
			}
			res.Vector[res.Observed] = 1
			cumulative++
		}
		res.Observed++
	}

	if res.Err == nil {
		res.Vector[width] = cumulative
	}
	return res
}

// parseFloat accepts the decimal forms coverage tools emit, including
// surrounding whitespace and a trailing f or d type suffix.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if n := len(s); n > 1 {
		switch s[n-1] {
		case 'f', 'F', 'd', 'D':
			s = s[:n-1]
		}
	}
	v, err := strconv.ParseFloat(s, 32)
	if errors.Is(err, strconv.ErrRange) {
		// out of float32 range: v is +-Inf, or 0 on underflow
		return v, nil
	}
	return v, err
}
