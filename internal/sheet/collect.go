// internal/sheet/collect.go
package sheet

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Collect lists the sheet files in dir whose names contain keyword and end
// with ext, sorted by name. An empty keyword matches every file.
func Collect(dir, keyword, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list sheets in %s: %w", dir, err)
	}
	if ext == "" {
		ext = ".md"
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		if keyword != "" && !strings.Contains(name, keyword) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}
