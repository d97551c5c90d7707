package sections

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	tocRe          = regexp.MustCompile(`(?i)Table of Contents`)
	pageNumberRe   = regexp.MustCompile(`Page \d+`)
	trailingNumRe  = regexp.MustCompile(`(?m)\d+\s*$`)
	dashUnderRunRe = regexp.MustCompile(`[-_]{3,}`)
)

// Clean collapses whitespace and strips page furniture from section text.
// It is repeated until the text stops changing, so Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	for {
		next := cleanOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func cleanOnce(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = tocRe.ReplaceAllString(text, "")
	text = pageNumberRe.ReplaceAllString(text, "")
	text = trailingNumRe.ReplaceAllString(text, "")
	text = dashUnderRunRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
