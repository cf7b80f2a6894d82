package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeFilename replaces characters that are unsafe in filenames with
// underscores and trims surrounding whitespace.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// StripEpisodeSuffix removes a trailing parenthesized suffix such as
// " (12 eps)" that AllAnime appends to titles. Downstream search tools do
// not recognize that format.
func StripEpisodeSuffix(title string) string {
	if idx := strings.Index(title, " ("); idx >= 0 {
		return title[:idx]
	}
	return title
}

// TitleSlug builds a short lowercase identifier from a title, keeping at
// most the first three ASCII words. Used for cache filenames.
func TitleSlug(title string) string {
	var filtered strings.Builder
	for _, r := range title {
		if r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			filtered.WriteRune(r)
		} else if unicode.IsSpace(r) {
			filtered.WriteRune(' ')
		}
	}
	words := strings.Fields(filtered.String())
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.ToLower(strings.Join(words, "_"))
}

// NormalizeTitle applies NFKC normalization and collapses interior
// whitespace. Catalog titles mix full-width and half-width forms; search
// APIs expect the compatibility form.
func NormalizeTitle(title string) string {
	normalized := norm.NFKC.String(title)
	return strings.Join(strings.Fields(normalized), " ")
}
