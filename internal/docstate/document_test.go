package docstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreOpenGetClose(t *testing.T) {
	s := NewStore()
	doc := s.Open("file:///a.rb", "class Foo\nend\n", 1, "ruby")
	require.NotNil(t, doc)

	got, ok := s.Get("file:///a.rb")
	require.True(t, ok)
	content, version := got.Content()
	assert.Equal(t, "class Foo\nend\n", content)
	assert.EqualValues(t, 1, version)

	s.Close("file:///a.rb")
	_, ok = s.Get("file:///a.rb")
	assert.False(t, ok)
}

func TestDocumentReplaceInvalidatesCache(t *testing.T) {
	doc := New("file:///a.rb", "x = 1\n", 1, "ruby")
	doc.SetSnapshots("Foo#bar", []TypeSnapshot{{StartOffset: 0, EndOffset: 5}})

	doc.Replace("x = 2\n", 2)

	_, ok := doc.Snapshots("Foo#bar")
	assert.False(t, ok, "Replace must clear cached snapshots")

	content, version := doc.Content()
	assert.Equal(t, "x = 2\n", content)
	assert.EqualValues(t, 2, version)
}

func TestDocumentLocalVariables(t *testing.T) {
	doc := New("file:///a.rb", "", 1, "ruby")
	doc.SetLocalVariables(1, []LocalVariableEntry{{Name: "x", Scope: 1}})
	got := doc.LocalVariables(1)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Name)
}
