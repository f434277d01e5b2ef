package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/ironsheep/image-integrity-mcp/internal/format"
)

// Discover lists the image files under root whose extension belongs to
// one of formats. root may itself be a file. With recursive unset only
// the top directory is listed. The result is sorted.
func Discover(root string, formats []format.Format, recursive bool) ([]string, error) {
	want := make(map[format.Format]bool, len(formats))
	for _, f := range formats {
		want[f] = true
	}
	match := func(path string) bool {
		f := format.FromPath(path)
		return f != format.Unknown && want[f]
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if match(root) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subdirectories are skipped, not fatal.
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if path != root && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && match(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ParseFormats converts format names such as "JPEG" or "png" into
// formats, rejecting unknown names.
func ParseFormats(names []string) ([]format.Format, error) {
	out := make([]format.Format, 0, len(names))
	for _, n := range names {
		f := format.ParseName(n)
		if f == format.Unknown {
			return nil, fmt.Errorf("unknown image format %q", n)
		}
		out = append(out, f)
	}
	return out, nil
}
