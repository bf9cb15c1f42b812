package logging

import (
	"bytes"
	"testing"

	charm "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer

	quiet := New(&buf, false)
	quiet.Debug("hidden")
	assert.Empty(t, buf.String())

	quiet.Info("shown", "report", "Foo___bar.xml")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "Foo___bar.xml")

	buf.Reset()
	verbose := New(&buf, true)
	verbose.Debug("details")
	assert.Contains(t, buf.String(), "details")
	assert.Equal(t, charm.DebugLevel, verbose.GetLevel())
}

func TestSetDefault(t *testing.T) {
	original := Default()
	t.Cleanup(func() { SetDefault(original) })

	var buf bytes.Buffer
	custom := New(&buf, false)
	SetDefault(custom)
	assert.Same(t, custom, Default())

	SetDefault(nil)
	assert.Same(t, custom, Default(), "nil must not replace the default")
}

func TestOr(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	assert.Same(t, l, Or(l))
	assert.Same(t, Default(), Or(nil))
}
