package textutil

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxNameLength = 120

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// foldASCII strips diacritics by decomposing and dropping combining marks.
func foldASCII(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// SanitizeFileName reduces name to a lowercase, key-safe file name. The
// extension is kept and lowercased; the stem is folded to ASCII and every run
// of characters outside [a-z0-9._-] becomes a single dash. Returns "file"
// (plus extension) when nothing usable remains.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(fileNameReplacer.Replace(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	ext := strings.ToLower(path.Ext(name))
	stem := strings.TrimSuffix(name, path.Ext(name))

	ext = "." + SanitizeToken(strings.TrimPrefix(ext, "."))
	if ext == ".unknown" || ext == "." {
		ext = ""
	}
	stem = slugify(stem, true)
	if stem == "" {
		stem = "file"
	}
	if limit := maxNameLength - len(ext); len(stem) > limit {
		stem = strings.Trim(stem[:limit], "-._")
	}
	return stem + ext
}

// SanitizeToken converts a string to a lowercase filesystem-safe token.
// Letters are lowercased, digits and hyphens/underscores are kept, everything
// else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(foldASCII(value))
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}

// Slug turns a display name into a lowercase dash-separated path segment.
// Returns "" when nothing usable remains.
func Slug(value string) string {
	return slugify(value, false)
}

func slugify(value string, keepDots bool) string {
	value = foldASCII(strings.TrimSpace(value))
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		case r == '.' && keepDots:
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-._")
	if len(out) > maxNameLength {
		out = strings.Trim(out[:maxNameLength], "-._")
	}
	return out
}
