package tools

import (
	"path/filepath"
	"strings"
)

// DefaultFilename is used when nothing usable survives sanitization.
const DefaultFilename = "document.md"

// DefaultExtension replaces any extension that is not on the safe list.
const DefaultExtension = ".md"

var safeExtensions = map[string]struct{}{
	".md":   {},
	".txt":  {},
	".csv":  {},
	".json": {},
}

// SanitizeFilename reduces a model supplied name to a single safe path
// element. Directory separators and parent references are removed, spaces
// become '-', any other character outside [A-Za-z0-9._-] is dropped, and the
// extension is forced onto the safe list.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	name = strings.ReplaceAll(name, "..", "")

	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	clean := strings.Trim(b.String(), ".-")

	ext := strings.ToLower(filepath.Ext(clean))
	base := strings.TrimSuffix(clean, filepath.Ext(clean))
	base = strings.Trim(base, ".-")
	if base == "" {
		return DefaultFilename
	}
	if _, ok := safeExtensions[ext]; !ok {
		ext = DefaultExtension
	}
	if len(base) > 100 {
		base = base[:100]
	}
	return base + ext
}
