package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterStatusPrintsIconAndMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("🔍", "Scanning workspace...")

	out := buf.String()
	assert.Contains(t, out, "🔍")
	assert.Contains(t, out, "Scanning workspace...")
}

func TestWriterStatusWithoutIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("", "detail line")
	assert.Equal(t, "   detail line\n", buf.String())
}

func TestWriterSuccessPrintsCheckmark(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Successf("Indexed %d files", 42)

	out := buf.String()
	assert.Contains(t, out, "✅")
	assert.Contains(t, out, "Indexed 42 files")
}

func TestWriterWarningPrintsWarningIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Warning("ruby executable not found")

	out := buf.String()
	assert.Contains(t, out, "⚠️")
	assert.Contains(t, out, "ruby executable not found")
}

func TestWriterErrorPrintsErrorIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Errorf("cannot read %s", "lib/app.rb")

	out := buf.String()
	assert.Contains(t, out, "❌")
	assert.Contains(t, out, "cannot read lib/app.rb")
}

func TestWriterStatusfFormatsMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Statusf("📂", "Found %d Ruby files in %s", 42, "lib/")

	out := buf.String()
	assert.Contains(t, out, "📂")
	assert.Contains(t, out, "Found 42 Ruby files in lib/")
}

func TestWriterHint(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Hintf("run `ruby-fast-lsp serve` to start the language server")

	out := buf.String()
	assert.Contains(t, out, "↳")
	assert.Contains(t, out, "ruby-fast-lsp serve")
}

func TestWriterNewlinePrintsEmptyLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Newline()
	assert.Equal(t, "\n", buf.String())
}
