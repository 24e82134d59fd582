package fswatch

import (
	"os"
	"path/filepath"
)

// ScanDir lists files under dir up to maxDepth levels deep (1 = dir itself).
// Permission and stat errors on individual entries are skipped, never fatal.
func ScanDir(dir string, maxDepth int) []string {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	var out []string
	scanInto(dir, maxDepth, &out)
	return out
}

func scanInto(dir string, depth int, out *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if depth > 1 {
				scanInto(path, depth-1, out)
			}
			continue
		}
		if _, err := entry.Info(); err != nil {
			continue
		}
		*out = append(*out, path)
	}
}
