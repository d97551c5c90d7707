package sections

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultHardCap bounds the final section when no end marker is found.
	DefaultHardCap = 500_000
	// DefaultMinChars is the cleaned length a section must exceed to be kept.
	DefaultMinChars = 50
)

var endMarkerRe = regexp.MustCompile(`(?im)(SIGNATURES|EXHIBIT\s+INDEX|^ITEM\s+15\.)`)

// Span is a raw section boundary within the filing text.
type Span struct {
	Name  string
	Start int
	End   int
}

// Section is a located, cleaned section.
type Section struct {
	Span
	Text string
}

// Locator finds 10-K item sections in filing text.
type Locator struct {
	rules    []Rule
	hardCap  int
	minChars int
	log      *slog.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithHardCap overrides DefaultHardCap.
func WithHardCap(n int) Option {
	return func(l *Locator) { l.hardCap = n }
}

// WithMinChars overrides DefaultMinChars.
func WithMinChars(n int) Option {
	return func(l *Locator) { l.minChars = n }
}

// WithLogger sets the logger used for per-section debug output.
func WithLogger(log *slog.Logger) Option {
	return func(l *Locator) { l.log = log }
}

// NewLocator builds a Locator over the given ordered rules.
func NewLocator(rules []Rule, opts ...Option) *Locator {
	l := &Locator{
		rules:    rules,
		hardCap:  DefaultHardCap,
		minChars: DefaultMinChars,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Spans returns the raw section boundaries ordered by start offset.
//
// Each rule contributes its last match, which skips table-of-contents
// entries that precede the real heading. A heading repeated after the real
// section (for example inside an exhibit) moves the start later; that case
// is not detected.
func (l *Locator) Spans(text string) []Span {
	var spans []Span
	for _, rule := range l.rules {
		matches := rule.Pattern.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		spans = append(spans, Span{Name: rule.Name, Start: last[0]})
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	for i := range spans {
		if i < len(spans)-1 {
			spans[i].End = spans[i+1].Start
			continue
		}
		spans[i].End = l.finalEnd(text, spans[i].Start)
	}
	return spans
}

func (l *Locator) finalEnd(text string, start int) int {
	if loc := endMarkerRe.FindStringIndex(text[start:]); loc != nil {
		return start + loc[0]
	}
	return min(start+l.hardCap, len(text))
}

// Locate returns the cleaned sections of text, dropping any whose cleaned
// text is too short to carry content. Order follows Spans.
func (l *Locator) Locate(text string) []Section {
	var out []Section
	for _, span := range l.Spans(text) {
		cleaned := Clean(strings.TrimSpace(text[span.Start:span.End]))
		chars := utf8.RuneCountInString(cleaned)
		if chars <= l.minChars {
			l.log.Debug("dropping short section", "section", span.Name, "chars", chars)
			continue
		}
		l.log.Debug("extracted section", "section", span.Name, "start", span.Start, "chars", chars)
		out = append(out, Section{Span: span, Text: cleaned})
	}
	return out
}
