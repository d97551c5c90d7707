package edgar

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText returns the first <TEXT> block of a full submission, converted
// to plain text when it holds HTML.
func ExtractText(submission string) (string, error) {
	start := strings.Index(submission, "<TEXT>")
	end := strings.Index(submission, "</TEXT>")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no <TEXT> section", ErrNoFiling)
	}
	text := submission[start+len("<TEXT>") : end]

	head := text
	if len(head) > htmlSniffLen {
		head = head[:htmlSniffLen]
	}
	if !strings.Contains(strings.ToLower(head), "<html") {
		return text, nil
	}
	return HTMLText(strings.NewReader(text))
}

// HTMLText strips scripts and styles and returns one trimmed phrase per line.
// Runs of two spaces inside a line also separate phrases.
func HTMLText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style").Remove()

	var out []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if p := strings.TrimSpace(phrase); p != "" {
				out = append(out, p)
			}
		}
	}
	return strings.Join(out, "\n"), nil
}
