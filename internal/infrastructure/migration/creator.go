package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Create writes an empty up/down migration pair under dir and returns
// both paths. The version prefix is the current UTC timestamp so files
// sort in creation order.
func Create(dir, name string) (up string, down string, err error) {
	slug := sanitizeName(name)
	if slug == "" {
		return "", "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create migrations directory: %w", err)
	}
	version := time.Now().UTC().Format("20060102150405")
	up = filepath.Join(dir, fmt.Sprintf("%s_%s.up.sql", version, slug))
	down = filepath.Join(dir, fmt.Sprintf("%s_%s.down.sql", version, slug))
	header := fmt.Sprintf("-- %s\n", slug)
	if err := os.WriteFile(up, []byte(header), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", up, err)
	}
	if err := os.WriteFile(down, []byte(header), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", down, err)
	}
	return up, down, nil
}

// sanitizeName lowercases the name and collapses anything that is not
// a letter or digit into single underscores.
func sanitizeName(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
