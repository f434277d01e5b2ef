package checkpoint

import (
	"encoding/hex"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// SessionID derives a short stable id from the scan parameters. The same
// directory, format set (in any order or case), recursion flag and
// analysis profile always give the same id, so a rerun finds its earlier
// checkpoints. profile is a config.Config fingerprint; a rerun with other
// analysis settings gets a fresh session.
func SessionID(root string, formats []string, recursive bool, profile string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	h := blake3.New()
	h.Write([]byte(filepath.Clean(root)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(normalizeFormats(formats), ",")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(recursive)))
	h.Write([]byte{0})
	h.Write([]byte(profile))
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func normalizeFormats(formats []string) []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, strings.ToUpper(strings.TrimSpace(f)))
	}
	sort.Strings(out)
	return out
}
