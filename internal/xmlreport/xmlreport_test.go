package xmlreport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `<?xml version="1.0"?>
<!DOCTYPE coverage SYSTEM "http://cobertura.sourceforge.net/xml/coverage-04.dtd">
<coverage line-rate="0.5">
  <packages>
    <package name="org.example">
      <classes>
        <class name="org.example.Foo" filename="org/example/Foo.java">
          <methods>
            <method name="&lt;init&gt;" signature="()V" line-rate="1.0">
              <lines><line number="3" hits="1"/></lines>
            </method>
            <method name="bar" signature="()I" line-rate="0.0">
              <lines><line number="5" hits="0"/></lines>
            </method>
          </methods>
          <lines>
            <line number="3" hits="1"/>
            <line number="5" hits="0"/>
          </lines>
        </class>
      </classes>
    </package>
  </packages>
</coverage>`

func TestParse_ElementsByTagName(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleReport))
	require.NoError(t, err)

	methods := doc.ElementsByTagName("method")
	require.Len(t, methods, 2)

	name, ok := methods[0].Attr("name")
	assert.True(t, ok)
	assert.Equal(t, "<init>", name)

	name, _ = methods[1].Attr("name")
	assert.Equal(t, "bar", name)

	// nested method lines and class lines are both returned, in document order
	lines := doc.ElementsByTagName("line")
	require.Len(t, lines, 4)
	hits := make([]string, 0, len(lines))
	for _, l := range lines {
		h, _ := l.Attr("hits")
		hits = append(hits, h)
	}
	assert.Equal(t, []string{"1", "0", "1", "0"}, hits)

	assert.Empty(t, doc.ElementsByTagName("branch"))
}

func TestElement_MissingAttr(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<coverage><line number="1"/></coverage>`))
	require.NoError(t, err)

	_, ok := doc.ElementsByTagName("line")[0].Attr("hits")
	assert.False(t, ok)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unclosed element", `<coverage><line hits="1">`},
		{"mismatched tags", `<coverage><line></method></coverage>`},
		{"empty document", ``},
		{"two roots", `<a/><b/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Foo___bar.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleReport), 0o644))

	doc, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, 15, doc.Len())

	_, err = ParseFile(filepath.Join(dir, "missing.xml"))
	assert.Error(t, err)
}

func TestDocument_NilSafe(t *testing.T) {
	var doc *Document
	assert.Nil(t, doc.ElementsByTagName("line"))
	assert.Equal(t, 0, doc.Len())
}

func TestParse_Latin1(t *testing.T) {
	// "Caf\xe9" is ISO-8859-1 for "Café"
	input := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		"<coverage><class name=\"Caf\xe9\"><line hits=\"1\"/></class></coverage>"

	doc, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	name, ok := doc.ElementsByTagName("class")[0].Attr("name")
	require.True(t, ok)
	assert.Equal(t, "Café", name)
	assert.Len(t, doc.ElementsByTagName("line"), 1)
}

func TestParse_UnknownEncoding(t *testing.T) {
	input := `<?xml version="1.0" encoding="x-no-such-charset"?><coverage/>`

	_, err := Parse(strings.NewReader(input))
	assert.ErrorContains(t, err, "x-no-such-charset")
}
