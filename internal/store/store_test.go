package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "defs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecords() []DefRecord {
	return []DefRecord{
		{FQN: "Set", FQNKind: 0, EntryKind: 0, URI: "file:///stubs/set.rb", StartLine: 0, EndLine: 0, EndCol: 3},
		{FQN: "Set#add", FQNKind: 2, EntryKind: 2, URI: "file:///stubs/set.rb", StartLine: 4, EndLine: 4, EndCol: 7, Owner: "Set"},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDefinitions(ctx, "stdlib:3.4:set", sampleRecords()))

	recs, ok, err := s.LoadDefinitions(ctx, "stdlib:3.4:set")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, recs, 2)
	assert.Equal(t, "Set", recs[0].FQN)
	assert.Equal(t, "Set#add", recs[1].FQN)
	assert.Equal(t, "Set", recs[1].Owner)
}

func TestLoadMissingSet(t *testing.T) {
	s := openTestStore(t)

	recs, ok, err := s.LoadDefinitions(context.Background(), "gem:nope-1.0")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, recs)
}

func TestSaveReplacesPriorSet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDefinitions(ctx, "k", sampleRecords()))
	require.NoError(t, s.SaveDefinitions(ctx, "k", sampleRecords()[:1]))

	recs, ok, err := s.LoadDefinitions(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, recs, 1)
}

func TestEmptySetIsStillRecorded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// A stdlib module with no definitions still records "indexed", so
	// startup doesn't re-parse it every time.
	require.NoError(t, s.SaveDefinitions(ctx, "stdlib:3.4:english", nil))

	recs, ok, err := s.LoadDefinitions(ctx, "stdlib:3.4:english")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, recs)
}

func TestDeleteSet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDefinitions(ctx, "k", sampleRecords()))
	require.NoError(t, s.DeleteSet(ctx, "k"))

	_, ok, err := s.LoadDefinitions(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDefinitions(ctx, "b", nil))
	require.NoError(t, s.SaveDefinitions(ctx, "a", nil))

	keys, err := s.SetKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.GetState(ctx, "ruby_version")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.SetState(ctx, "ruby_version", "3.4"))
	require.NoError(t, s.SetState(ctx, "ruby_version", "3.3"))

	v, err = s.GetState(ctx, "ruby_version")
	require.NoError(t, err)
	assert.Equal(t, "3.3", v)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defs.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveDefinitions(ctx, "k", sampleRecords()))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	recs, ok, err := s2.LoadDefinitions(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, recs, 2)
}
