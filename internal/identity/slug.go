package identity

import (
	"regexp"
	"strings"
)

// MaxSlugLength caps the base slug; collision suffixes are appended after the cap.
const MaxSlugLength = 150

// fallbackSlug is used when a name has no ASCII letters or digits at all.
const fallbackSlug = "unnamed"

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name, collapses every run of non [a-z0-9] characters
// into one hyphen, trims leading and trailing hyphens and then caps the
// result at MaxSlugLength. The cap comes last, so a capped slug can end in a
// hyphen. It may return "".
func Slugify(name string) string {
	s := nonAlphanumeric.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxSlugLength {
		s = s[:MaxSlugLength]
	}
	return s
}
