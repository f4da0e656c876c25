package fuzzysearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func seed(t *testing.T, e *Engine, fqns ...string) {
	t.Helper()
	for _, f := range fqns {
		require.NoError(t, e.Index(f, "Class"))
	}
}

func TestPrefixMatch(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "ActiveRecord::Base", "ActiveRecord::Migration", "ActionView::Helpers")

	res, err := e.Search("base", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "ActiveRecord::Base", res[0].FQN)
}

func TestFuzzyToleratesTypo(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "Foo::Calculator")

	res, err := e.Search("calcultor", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "Foo::Calculator", res[0].FQN)
}

func TestMethodNamesSearchable(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Index("User#full_name", "Method"))
	require.NoError(t, e.Index("User.find", "Method"))

	res, err := e.Search("find", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "User.find", res[0].FQN)
}

func TestRemove(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "Gone::Symbol")

	require.NoError(t, e.Remove("Gone::Symbol"))
	res, err := e.Search("gone", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestLimit(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "Item1", "Item2", "Item3", "Item4", "Item5")

	res, err := e.Search("item", 3)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestEmptyTermAndZeroLimit(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "Whatever")

	res, err := e.Search("", 10)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = e.Search("what", 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestCount(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "A", "B")

	n, err := e.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestLastComponent(t *testing.T) {
	assert.Equal(t, "Base", lastComponent("ActiveRecord::Base"))
	assert.Equal(t, "full_name", lastComponent("User#full_name"))
	assert.Equal(t, "find", lastComponent("User.find"))
	assert.Equal(t, "Plain", lastComponent("Plain"))
}
