package granularity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termfx/covmatrix/core"
)

func writeReport(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Foo___bar.xml")
	doc := `<?xml version="1.0"?><coverage><packages><package name="p"><classes>` +
		`<class name="p.Foo">` + body + `</class></classes></package></packages></coverage>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func methods(rates ...string) string {
	var b strings.Builder
	b.WriteString("<methods>")
	for i, r := range rates {
		name := fmt.Sprintf("m%d", i)
		if strings.HasPrefix(r, "<") {
			parts := strings.SplitN(r, "=", 2)
			name, r = parts[0], parts[1]
			name = strings.NewReplacer("<", "&lt;", ">", "&gt;").Replace(name)
		}
		fmt.Fprintf(&b, `<method name="%s" signature="()V" line-rate="%s"/>`, name, r)
	}
	b.WriteString("</methods>")
	return b.String()
}

func lines(hits ...string) string {
	var b strings.Builder
	b.WriteString("<lines>")
	for i, h := range hits {
		fmt.Fprintf(&b, `<line number="%d" hits="%s"/>`, i+1, h)
	}
	b.WriteString("</lines>")
	return b.String()
}

func TestNew(t *testing.T) {
	g, err := New(core.LevelMethod)
	require.NoError(t, err)
	assert.Equal(t, core.LevelMethod, g.Level())

	g, err = New(core.LevelLine)
	require.NoError(t, err)
	assert.Equal(t, core.LevelLine, g.Level())

	_, err = New("branch")
	assert.ErrorIs(t, err, core.ErrUnknownLevel)
}

func TestLine_ExtractHits(t *testing.T) {
	path := writeReport(t, lines("1", "0", "3", "0", "2"))

	width, err := Line.ElementCount(path)
	require.NoError(t, err)
	assert.Equal(t, 5, width)

	res := Line.Extract(path, width)
	require.NoError(t, res.Err)
	assert.Equal(t, core.Vector{1, 0, 1, 0, 1, 3}, res.Vector)
	assert.Equal(t, 5, res.Observed)
	assert.False(t, res.Mismatched())
}

func TestMethod_ExcludesInitializers(t *testing.T) {
	path := writeReport(t, methods("<init>=1.0", "0.5", "<clinit>=1.0", "0.0", "1"))

	width, err := Method.ElementCount(path)
	require.NoError(t, err)
	assert.Equal(t, 3, width)

	res := Method.Extract(path, width)
	require.NoError(t, res.Err)
	assert.Equal(t, core.Vector{1, 0, 1, 2}, res.Vector)
}

func TestMethod_AllZeroRates(t *testing.T) {
	path := writeReport(t, methods("0.0", "0", "0.0"))

	res := Method.Extract(path, 3)
	require.NoError(t, res.Err)
	assert.Equal(t, core.Vector{0, 0, 0, 0}, res.Vector)
	assert.Equal(t, 0, res.Vector.Cumulative())
}

func TestLine_NoExclusion(t *testing.T) {
	// line granularity ignores element names entirely
	path := writeReport(t, `<lines><line number="1" hits="1" name="&lt;init&gt;"/></lines>`)

	width, err := Line.ElementCount(path)
	require.NoError(t, err)
	assert.Equal(t, 1, width)
}

func TestExtract_FloatForms(t *testing.T) {
	path := writeReport(t, lines(" 2 ", "1.5f", "0.0d", "1e-3"))

	res := Line.Extract(path, 4)
	require.NoError(t, res.Err)
	assert.Equal(t, core.Vector{1, 1, 0, 1, 3}, res.Vector)
}

func TestExtract_PartialOnBadValue(t *testing.T) {
	path := writeReport(t, lines("1", "1", "many", "1"))

	res := Line.Extract(path, 4)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "many")
	// marks before the failure survive, cumulative slot stays zero
	assert.Equal(t, core.Vector{1, 1, 0, 0, 0}, res.Vector)
	// the element set itself matches the ordering
	assert.Equal(t, 4, res.Observed)
	assert.False(t, res.Mismatched())
}

func TestExtract_OutOfRangeFloat(t *testing.T) {
	path := writeReport(t, lines("1e39", "1", "-1e39"))

	res := Line.Extract(path, 3)
	require.NoError(t, res.Err)
	assert.Equal(t, core.Vector{1, 1, 0, 2}, res.Vector)
}

func TestExtract_MissingAttribute(t *testing.T) {
	path := writeReport(t, `<methods><method name="a" line-rate="1"/><method name="b"/></methods>`)

	res := Method.Extract(path, 2)
	require.Error(t, res.Err)
	assert.Equal(t, core.Vector{1, 0, 0}, res.Vector)
	assert.Equal(t, 2, res.Observed)
	assert.False(t, res.Mismatched())
}

func TestMethod_MissingName(t *testing.T) {
	path := writeReport(t, `<methods><method name="a" line-rate="1"/><method line-rate="1"/></methods>`)

	count, err := Method.ElementCount(path)
	require.Error(t, err)
	assert.Equal(t, 1, count)

	res := Method.Extract(path, 2)
	require.ErrorIs(t, res.Err, core.ErrUnreadableReport)
	assert.Equal(t, core.Vector{1, 0, 0}, res.Vector)
	assert.False(t, res.Mismatched())
}

func TestExtract_MalformedXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<coverage><line hits="1">`), 0o644))

	count, err := Line.ElementCount(path)
	assert.Error(t, err)
	assert.Equal(t, 0, count)

	res := Line.Extract(path, 3)
	assert.ErrorIs(t, res.Err, core.ErrUnreadableReport)
	assert.Equal(t, core.Vector{0, 0, 0, 0}, res.Vector)
	assert.False(t, res.Mismatched())
}

func TestExtract_MissingFile(t *testing.T) {
	res := Line.Extract(filepath.Join(t.TempDir(), "nope.xml"), 2)
	assert.Error(t, res.Err)
	assert.Len(t, res.Vector, 3)
}

func TestExtract_MoreElementsThanWidth(t *testing.T) {
	path := writeReport(t, lines("1", "0", "1", "1"))

	res := Line.Extract(path, 2)
	require.ErrorIs(t, res.Err, core.ErrElementMismatch)
	assert.Equal(t, core.Vector{1, 0, 0}, res.Vector)
	assert.Equal(t, 4, res.Observed)
	assert.True(t, res.Mismatched())
}

func TestExtract_UncoveredOverflowKeepsCumulative(t *testing.T) {
	// extra elements that were never hit do not disturb the vector
	path := writeReport(t, lines("1", "1", "0"))

	res := Line.Extract(path, 2)
	require.NoError(t, res.Err)
	assert.Equal(t, core.Vector{1, 1, 2}, res.Vector)
	assert.Equal(t, 3, res.Observed)
	assert.True(t, res.Mismatched())
}

func TestExtract_FewerElementsThanWidth(t *testing.T) {
	path := writeReport(t, lines("1"))

	res := Line.Extract(path, 3)
	require.NoError(t, res.Err)
	assert.Equal(t, core.Vector{1, 0, 0, 1}, res.Vector)
	assert.True(t, res.Mismatched())
}
