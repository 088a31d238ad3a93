// internal/appconfig/template.go
package appconfig

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed template.yaml
var configTemplate string

const headerSeparator = "# ====="

// Template styles accepted by BuildTemplate.
const (
	StyleInert = "inert"
	StyleFull  = "full"
	StyleBare  = "bare"
	StyleBlank = "blank"
)

// BuildTemplate renders the config template in one of four styles: full
// keeps everything, inert comments out every setting, bare drops comments
// and blank keeps only the header.
func BuildTemplate(style string) (string, error) {
	switch style {
	case StyleInert, StyleFull, StyleBare, StyleBlank:
	default:
		return "", fmt.Errorf("unknown template style %q (want inert, full, bare or blank)", style)
	}

	lines := strings.Split(configTemplate, "\n")
	start := 0
	for i, line := range lines {
		if strings.Contains(line, headerSeparator) {
			start = i + 1
			break
		}
	}
	out := append([]string{}, lines[:start]...)

	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			out = append(out, line)
		case strings.HasPrefix(trimmed, "#"):
			switch style {
			case StyleInert:
				out = append(out, "#"+line)
			case StyleFull:
				out = append(out, line)
			}
		default:
			switch style {
			case StyleInert:
				out = append(out, "# "+line)
			case StyleFull, StyleBare:
				out = append(out, line)
			}
		}
	}
	return strings.Join(out, "\n"), nil
}

// WriteTemplate writes dir/.lime/config.yaml. An existing file is only
// replaced when force is set.
func WriteTemplate(dir, style string, force bool) (string, error) {
	text, err := BuildTemplate(style)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ConfigDirName, ConfigFileName)
	if isFile(path) && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
