// Package metadata computes descriptive statistics for chunk text.
package metadata

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"balance-sheets/internal/chunker"
)

const previewLength = 200

var (
	moneyRe       = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?(?:\s*(?:million|billion|thousand))?`)
	spelledDateRe = regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}`)
	numericDateRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	percentageRe  = regexp.MustCompile(`\d+(?:\.\d+)?%`)
)

// FinancialTerms are counted per chunk; only non-zero counts are kept.
var FinancialTerms = []string{
	"revenue", "income", "earnings", "profit", "loss", "margin",
	"cash flow", "debt", "equity", "assets", "liabilities",
	"growth", "decline", "increase", "decrease",
}

// RiskTerms add up to the risk score.
var RiskTerms = []string{"risk", "uncertainty", "adverse", "negative", "decline", "loss"}

// Stats are the derived statistics of one chunk.
type Stats struct {
	WordCount             int            `json:"word_count"`
	CharCount             int            `json:"char_count"`
	SentenceCount         int            `json:"sentence_count"`
	FinancialFiguresCount int            `json:"financial_figures_count"`
	DatesCount            int            `json:"dates_count"`
	PercentagesCount      int            `json:"percentages_count"`
	KeyTerms              map[string]int `json:"key_terms"`
	RiskScore             int            `json:"risk_score"`
}

// Extractor computes Stats. It holds no mutable state.
type Extractor struct {
	seg chunker.Segmenter
}

// NewExtractor uses seg for sentence counts.
func NewExtractor(seg chunker.Segmenter) *Extractor {
	if seg == nil {
		seg = chunker.NaiveSegmenter{}
	}
	return &Extractor{seg: seg}
}

// Extract returns the statistics of text.
func (e *Extractor) Extract(text string) Stats {
	lower := strings.ToLower(text)

	terms := make(map[string]int)
	for _, term := range FinancialTerms {
		if n := strings.Count(lower, term); n > 0 {
			terms[term] = n
		}
	}
	risk := 0
	for _, term := range RiskTerms {
		risk += strings.Count(lower, term)
	}

	return Stats{
		WordCount:             len(strings.Fields(text)),
		CharCount:             utf8.RuneCountInString(text),
		SentenceCount:         e.countSentences(text),
		FinancialFiguresCount: len(moneyRe.FindAllStringIndex(text, -1)),
		DatesCount:            len(spelledDateRe.FindAllStringIndex(text, -1)) + len(numericDateRe.FindAllStringIndex(text, -1)),
		PercentagesCount:      len(percentageRe.FindAllStringIndex(text, -1)),
		KeyTerms:              terms,
		RiskScore:             risk,
	}
}

func (e *Extractor) countSentences(text string) int {
	n := 0
	for _, s := range e.seg.Sentences(text) {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

// Preview returns the first 200 characters of text, with an ellipsis when cut.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	return string([]rune(text)[:previewLength]) + "..."
}
