package chunker

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Segmenter splits text into sentences.
type Segmenter interface {
	Sentences(text string) []string
}

// NaiveSegmenter splits on ". " only.
type NaiveSegmenter struct{}

func (NaiveSegmenter) Sentences(text string) []string {
	return strings.Split(text, ". ")
}

// PunktSegmenter uses a pretrained English Punkt model.
type PunktSegmenter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewPunktSegmenter loads the bundled English model.
func NewPunktSegmenter() (*PunktSegmenter, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load punkt model: %w", err)
	}
	return &PunktSegmenter{tokenizer: tok}, nil
}

func (p *PunktSegmenter) Sentences(text string) []string {
	tokens := p.tokenizer.Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, s := range tokens {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// fallbackSegmenter runs primary and degrades to NaiveSegmenter if it panics.
type fallbackSegmenter struct {
	primary Segmenter
	log     *slog.Logger
}

func (f fallbackSegmenter) Sentences(text string) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Warn("sentence segmentation failed, using naive split", "panic", r)
			out = NaiveSegmenter{}.Sentences(text)
		}
	}()
	return f.primary.Sentences(text)
}

// DefaultSegmenter returns the Punkt segmenter guarded by a naive fallback,
// or the naive segmenter alone when the model cannot be loaded.
func DefaultSegmenter(log *slog.Logger) Segmenter {
	p, err := NewPunktSegmenter()
	if err != nil {
		log.Warn("punkt unavailable, using naive sentence split", "err", err)
		return NaiveSegmenter{}
	}
	return fallbackSegmenter{primary: p, log: log}
}
