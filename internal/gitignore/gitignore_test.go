package gitignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"exact file", "foo.rb", "foo.rb", false, true},
		{"exact file in subdir", "foo.rb", "lib/foo.rb", false, true},
		{"wildcard extension", "*.log", "debug.log", false, true},
		{"wildcard no cross dir", "*.log", "log/debug.txt", false, false},
		{"anchored", "/build", "build", true, true},
		{"anchored not nested", "/build", "lib/build", true, false},
		{"dir only matches dir", "tmp/", "tmp", true, true},
		{"dir only skips file", "tmp/", "tmp", false, false},
		{"dir only covers children", "tmp/", "tmp/cache.rb", false, true},
		{"doublestar", "**/fixtures", "spec/deep/fixtures", true, true},
		{"doublestar tail", "doc/**", "doc/a/b.md", false, true},
		{"question mark", "v?.rb", "v1.rb", false, true},
		{"char class", "v[12].rb", "v2.rb", false, true},
		{"char class miss", "v[12].rb", "v3.rb", false, false},
		{"slash makes anchored", "lib/foo.rb", "lib/foo.rb", false, true},
		{"slash anchored not nested", "lib/foo.rb", "app/lib/foo.rb", false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := New()
			m.AddPattern(tc.pattern)
			assert.Equal(t, tc.want, m.Match(tc.path, tc.isDir))
		})
	}
}

func TestNegationLaterRuleWins(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!keep.log")

	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("keep.log", false))
}

func TestCommentsAndBlanksIgnored(t *testing.T) {
	m := New()
	m.AddPattern("# a comment")
	m.AddPattern("")
	m.AddPattern("   ")
	assert.Equal(t, 0, m.Len())
}

func TestNestedBase(t *testing.T) {
	m := New()
	m.AddPatternWithBase("generated", "lib")

	assert.True(t, m.Match("lib/generated", true))
	assert.True(t, m.Match("lib/sub/generated", true))
	assert.False(t, m.Match("app/generated", true))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("vendor/\n*.gem\n# note\n!important.gem\n"), 0o644))

	m, err := FromFile(path)
	require.NoError(t, err)

	assert.True(t, m.Match(filepath.Join(dir, "vendor"), true))
	assert.True(t, m.Match(filepath.Join(dir, "pkg/built.gem"), false))
	assert.False(t, m.Match(filepath.Join(dir, "important.gem"), false))
}

func TestFromFileMissing(t *testing.T) {
	m, err := FromFile(filepath.Join(t.TempDir(), "nope", ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}
