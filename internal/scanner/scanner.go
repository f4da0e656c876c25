// Package scanner discovers indexable Ruby sources in a workspace: it
// walks the project root honoring gitignore and the fixed exclusion
// list, and scans top-of-file require directives so the coordinator can
// bound stdlib and gem indexing to what the project actually loads.
package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/gitignore"
)

// gitignoreCacheSize bounds the .gitignore matcher cache, which is keyed
// by scanned root: only the root's own .gitignore is read, nested
// .gitignore files are not.
const gitignoreCacheSize = 256

// DefaultMaxFileSize matches the file processor's input limit; larger
// files are skipped during discovery rather than rejected during parse.
const DefaultMaxFileSize int64 = 500 * 1024

// defaultExcludes are always skipped regardless of gitignore.
var defaultExcludes = []string{"vendor", "node_modules", ".git", "tmp", "log"}

// FileInfo is one discovered Ruby source file.
type FileInfo struct {
	// Path is the absolute path.
	Path string
	// RelPath is the path relative to the scanned root, slash-separated.
	RelPath string
	// Size is the file size in bytes.
	Size int64
}

// Result is the outcome of one workspace scan.
type Result struct {
	Files []FileInfo

	// Requires holds the distinct `require` arguments seen at the top of
	// project files: stdlib module names and gem entry points.
	Requires []string

	// Gems holds gem names declared in the workspace Gemfile, if one
	// exists.
	Gems []string
}

// Options configures a scan.
type Options struct {
	// ExcludeDirs replaces the default exclusion list when non-nil.
	ExcludeDirs []string

	// ExtraExcludes are appended to the effective exclusion list.
	ExtraExcludes []string

	// MaxFileSize skips files larger than this many bytes.
	// Defaults to DefaultMaxFileSize.
	MaxFileSize int64
}

// Scanner walks workspace roots. It caches parsed gitignore matchers per
// directory across scans.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create gitignore cache: %w", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan walks root collecting Ruby sources and require directives.
// Cancellation is checked per directory entry.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	excludes := opts.ExcludeDirs
	if excludes == nil {
		excludes = defaultExcludes
	}
	excludes = append(append([]string(nil), excludes...), opts.ExtraExcludes...)

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	matcher, err := s.matcherFor(absRoot)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	requires := make(map[string]struct{})

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries degrade to a skip; indexing continues
			// for the rest of the workspace.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if isExcludedDir(d.Name(), excludes) {
				return fs.SkipDir
			}
			// Matchers loaded from a .gitignore carry that file's
			// directory as their base, so they match against absolute
			// paths.
			if matcher.Match(path, true) {
				return fs.SkipDir
			}
			return nil
		}

		// Symlinks are skipped; following them risks cycles and escapes
		// from the workspace root.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if !isRubySource(d.Name()) {
			return nil
		}
		if matcher.Match(path, false) {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if fi.Size() > maxSize {
			return nil
		}

		result.Files = append(result.Files, FileInfo{
			Path:    path,
			RelPath: rel,
			Size:    fi.Size(),
		})
		for _, req := range scanRequires(path) {
			requires[req] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for r := range requires {
		result.Requires = append(result.Requires, r)
	}
	sort.Strings(result.Requires)

	result.Gems = ParseGemfile(filepath.Join(absRoot, "Gemfile"))

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].RelPath < result.Files[j].RelPath })
	return result, nil
}

// matcherFor loads (or reuses) the gitignore matcher rooted at dir.
func (s *Scanner) matcherFor(dir string) (*gitignore.Matcher, error) {
	if cached, ok := s.gitignoreCache.Get(dir); ok {
		return cached, nil
	}
	m, err := gitignore.FromFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil, err
	}
	s.gitignoreCache.Add(dir, m)
	return m, nil
}

func isExcludedDir(name string, excludes []string) bool {
	for _, e := range excludes {
		if name == e {
			return true
		}
	}
	return false
}

// isRubySource reports whether a filename is indexable Ruby.
func isRubySource(name string) bool {
	switch {
	case strings.HasSuffix(name, ".rb"):
		return true
	case strings.HasSuffix(name, ".gemspec"):
		return true
	case name == "Rakefile" || name == "Gemfile":
		return true
	default:
		return false
	}
}

// requireScanLimit bounds how many leading lines are scanned for
// require directives; requires below the header are load-order tricks
// this pass doesn't need to chase.
const requireScanLimit = 60

// scanRequires reads the top of one file for `require "x"` directives.
// require_relative targets are intra-project and already discovered by
// the walk, so only plain requires are returned.
func scanRequires(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for line := 0; sc.Scan() && line < requireScanLimit; line++ {
		if name, ok := parseRequireLine(sc.Text()); ok {
			out = append(out, name)
		}
	}
	return out
}

// parseRequireLine extracts the argument of a top-level require
// directive, tolerating both quote styles and parenthesised calls.
func parseRequireLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "require") || strings.HasPrefix(trimmed, "require_relative") {
		return "", false
	}
	rest := strings.TrimPrefix(trimmed, "require")
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 {
		return "", false
	}
	quote := rest[0]
	if quote != '\'' && quote != '"' {
		return "", false
	}
	end := strings.IndexByte(rest[1:], quote)
	if end < 0 {
		return "", false
	}
	name := rest[1 : 1+end]
	if name == "" {
		return "", false
	}
	return name, true
}

// ParseGemfile extracts declared gem names from a Gemfile. A missing
// Gemfile yields nil.
func ParseGemfile(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var gems []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		trimmed := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(trimmed, "gem ") && !strings.HasPrefix(trimmed, "gem(") {
			continue
		}
		rest := strings.TrimPrefix(trimmed, "gem")
		rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "("))
		if len(rest) < 2 {
			continue
		}
		quote := rest[0]
		if quote != '\'' && quote != '"' {
			continue
		}
		end := strings.IndexByte(rest[1:], quote)
		if end < 0 {
			continue
		}
		name := rest[1 : 1+end]
		if name == "" {
			continue
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			gems = append(gems, name)
		}
	}
	sort.Strings(gems)
	return gems
}
