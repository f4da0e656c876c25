package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageStrings(t *testing.T) {
	assert.Equal(t, "Scanning", StageScanning.String())
	assert.Equal(t, "Definitions", StageDefinitions.String())
	assert.Equal(t, "References", StageReferences.String())
	assert.Equal(t, "Diagnostics", StageDiagnostics.String())
	assert.Equal(t, "Complete", StageComplete.String())
	assert.Equal(t, "DEFS", StageDefinitions.Icon())
}

func TestPlainRendererProgress(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})
	require.NoError(t, r.Start(context.Background()))

	r.UpdateProgress(ProgressEvent{Stage: StageDefinitions, Current: 3, Total: 10, CurrentFile: "lib/foo.rb"})
	assert.Contains(t, buf.String(), "[DEFS] 3/10 lib/foo.rb")

	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "walking workspace"})
	assert.Contains(t, buf.String(), "[SCAN] walking workspace")

	require.NoError(t, r.Stop())
}

func TestPlainRendererErrors(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	r.AddError(ErrorEvent{File: "a.rb", Err: errors.New("boom")})
	r.AddError(ErrorEvent{File: "b.rb", Err: errors.New("meh"), IsWarn: true})

	out := buf.String()
	assert.Contains(t, out, "ERROR: a.rb: boom")
	assert.Contains(t, out, "WARN: b.rb: meh")
}

func TestPlainRendererComplete(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf})

	r.Complete(CompletionStats{
		Files:       12,
		Definitions: 80,
		References:  200,
		Unresolved:  3,
		Duration:    1500 * time.Millisecond,
		Warnings:    3,
		RubyVersion: "3.4",
		RubySource:  "rbenv",
	})

	out := buf.String()
	assert.Contains(t, out, "Indexed 12 files")
	assert.Contains(t, out, "80 definitions")
	assert.Contains(t, out, "3 unresolved")
	assert.Contains(t, out, "Ruby: 3.4 (rbenv)")
}

func TestBarRendererCompleteFlushesErrors(t *testing.T) {
	var buf bytes.Buffer
	r := NewBarRenderer(Config{Output: &buf})
	require.NoError(t, r.Start(context.Background()))

	r.UpdateProgress(ProgressEvent{Stage: StageDefinitions, Current: 1, Total: 4})
	r.AddError(ErrorEvent{File: "bad.rb", Err: errors.New("unparseable")})
	r.Complete(CompletionStats{Files: 4, Duration: time.Second})
	require.NoError(t, r.Stop())

	out := buf.String()
	assert.Contains(t, out, "ERROR: bad.rb: unparseable")
	assert.Contains(t, out, "Indexed 4 files")
}

func TestNewRendererForcePlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(Config{Output: &buf, ForcePlain: true})
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewRendererNonTTY(t *testing.T) {
	if DetectCI() {
		t.Skip("CI environment forces plain")
	}
	var buf bytes.Buffer
	r := NewRenderer(Config{Output: &buf})
	_, ok := r.(*BarRenderer)
	assert.True(t, ok)
}

func TestIsTTYOnBuffer(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}
