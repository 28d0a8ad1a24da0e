package markdown

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// DefaultPattern matches documents directly inside the content root.
const DefaultPattern = "*.md"

// parseWorkers bounds concurrent file reads while loading a directory.
const parseWorkers = 8

// LoadFile reads and parses root/rel. The document path is rel with
// forward slashes.
func LoadFile(root, rel string) (*Document, error) {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return Parse(filepath.ToSlash(rel), content)
}

// LoadDir parses every file under root matching pattern (doublestar
// syntax, "*.md" when empty). Documents come back sorted by path. A
// missing root yields no documents; any parse failure fails the whole load.
func LoadDir(ctx context.Context, root, pattern string) ([]*Document, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid content pattern %q", pattern)
	}

	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat content dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content path %s is not a directory", root)
	}

	matches, err := Match(os.DirFS(root), pattern)
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parseWorkers)
	for i, rel := range matches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := LoadFile(root, rel)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Match returns the regular files in fsys matching pattern, sorted.
func Match(fsys fs.FS, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}
