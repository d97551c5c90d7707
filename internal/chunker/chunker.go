package chunker

import (
	"strings"
)

const (
	DefaultTargetWords = 800
	DefaultMinWords    = 100
	DefaultMaxWords    = 1000
	DefaultOverlap     = 0.15
)

// Options controls how text is chunked.
type Options struct {
	// TargetWords is informational; packing is bounded by MaxWords.
	TargetWords int     `json:"target_size_words"`
	MinWords    int     `json:"min_size_words"`
	MaxWords    int     `json:"max_size_words"`
	Overlap     float64 `json:"overlap_percentage"`
}

// DefaultOptions returns the standard 10-K chunking configuration.
func DefaultOptions() Options {
	return Options{
		TargetWords: DefaultTargetWords,
		MinWords:    DefaultMinWords,
		MaxWords:    DefaultMaxWords,
		Overlap:     DefaultOverlap,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TargetWords <= 0 {
		o.TargetWords = d.TargetWords
	}
	if o.MinWords <= 0 {
		o.MinWords = d.MinWords
	}
	if o.MaxWords <= 0 {
		o.MaxWords = d.MaxWords
	}
	// Zero overlap is a valid setting.
	if o.Overlap < 0 || o.Overlap >= 1 {
		o.Overlap = d.Overlap
	}
	return o
}

// Chunk is a word span of one section.
type Chunk struct {
	Index     int
	Section   string
	Text      string
	WordCount int
}

// Chunker packs sentences into overlapping chunks.
type Chunker struct {
	opts Options
	seg  Segmenter
}

// New returns a Chunker. Zero size fields take their defaults; an overlap
// outside [0, 1) takes DefaultOverlap.
func New(opts Options, seg Segmenter) *Chunker {
	if seg == nil {
		seg = NaiveSegmenter{}
	}
	return &Chunker{opts: opts.withDefaults(), seg: seg}
}

// Options returns the effective options.
func (c *Chunker) Options() Options { return c.opts }

// Split chunks cleaned section text.
//
// Sentences are packed greedily up to MaxWords. When a sentence would
// overflow a non-empty buffer, the buffer is emitted and the next one starts
// with the last floor(n*Overlap) words of the emitted chunk followed by that
// sentence. The trailing buffer is kept only if it reaches MinWords; a
// section shorter than MinWords is returned whole as a single chunk.
// A sentence longer than MaxWords is never split.
func (c *Chunker) Split(text, section string) []Chunk {
	var (
		chunks []Chunk
		buf    []string
	)
	emit := func(ws []string) {
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Section:   section,
			Text:      strings.Join(ws, " "),
			WordCount: len(ws),
		})
	}

	for _, sentence := range c.seg.Sentences(text) {
		ws := strings.Fields(sentence)
		if len(buf)+len(ws) > c.opts.MaxWords && len(buf) > 0 {
			emit(buf)
			overlap := int(float64(len(buf)) * c.opts.Overlap)
			next := make([]string, 0, overlap+len(ws))
			next = append(next, buf[len(buf)-overlap:]...)
			buf = append(next, ws...)
			continue
		}
		buf = append(buf, ws...)
	}

	switch {
	case len(buf) == 0:
	case len(buf) >= c.opts.MinWords:
		emit(buf)
	default:
		if total := len(strings.Fields(text)); total < c.opts.MinWords {
			chunks = append(chunks, Chunk{
				Index:     len(chunks),
				Section:   section,
				Text:      text,
				WordCount: total,
			})
		}
	}
	return chunks
}
