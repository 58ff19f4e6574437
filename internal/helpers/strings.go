package helpers

import (
	"path/filepath"
	"strings"
)

// SplitAndTrim splits s by sep and drops empty parts.
func SplitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// FileStem returns the base name of path without its extension, or fallback
// when nothing usable is left.
func FileStem(path, fallback string) string {
	name := filepath.Base(strings.ReplaceAll(path, "\\", "/"))
	stem := strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name)))
	if stem == "" || stem == "." || stem == "/" {
		return fallback
	}
	return stem
}
