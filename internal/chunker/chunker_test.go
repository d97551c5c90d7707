package chunker

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeSentences builds n sentences of size words each, joined with ". ".
// Every word is unique so overlap can be checked positionally.
func makeSentences(n, size int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		ws := make([]string, size)
		for j := 0; j < size; j++ {
			ws[j] = fmt.Sprintf("s%dw%d", i, j)
		}
		parts[i] = strings.Join(ws, " ")
	}
	return strings.Join(parts, ". ")
}

func assertOverlap(t *testing.T, chunks []Chunk, overlap float64) {
	t.Helper()
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Text)
		cur := strings.Fields(chunks[i].Text)
		n := int(float64(len(prev)) * overlap)
		require.GreaterOrEqual(t, len(cur), n)
		assert.Equal(t, prev[len(prev)-n:], cur[:n], "chunk %d does not start with the tail of chunk %d", i, i-1)
	}
}

func TestSplitTwentyFiveHundredWords(t *testing.T) {
	text := makeSentences(50, 50)
	c := New(DefaultOptions(), NaiveSegmenter{})

	chunks := c.Split(text, "Item 7 - MD&A")

	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1000, 1000, 800}, []int{chunks[0].WordCount, chunks[1].WordCount, chunks[2].WordCount})
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "Item 7 - MD&A", ch.Section)
		assert.LessOrEqual(t, ch.WordCount, 1000)
		assert.GreaterOrEqual(t, ch.WordCount, 100)
		assert.Equal(t, ch.WordCount, len(strings.Fields(ch.Text)))
	}
	assertOverlap(t, chunks, 0.15)

	// The overlap is followed by the sentence that overflowed the buffer.
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, "s20w0", second[150])
}

func TestSplitDeterministic(t *testing.T) {
	text := makeSentences(37, 43)
	c := New(DefaultOptions(), NaiveSegmenter{})

	first := c.Split(text, "Item 1 - Business")
	second := c.Split(text, "Item 1 - Business")

	assert.Equal(t, first, second)
}

func TestSplitShortSectionIsSingleChunk(t *testing.T) {
	c := New(DefaultOptions(), NaiveSegmenter{})

	chunks := c.Split("Not applicable.", "Item 4 - Mine Safety Disclosures")

	require.Len(t, chunks, 1)
	assert.Equal(t, "Not applicable.", chunks[0].Text)
	assert.Equal(t, 2, chunks[0].WordCount)
}

func TestSplitBelowMaxIsSingleChunk(t *testing.T) {
	text := makeSentences(12, 50)
	chunks := New(DefaultOptions(), NaiveSegmenter{}).Split(text, "Item 1 - Business")

	require.Len(t, chunks, 1)
	assert.Equal(t, 600, chunks[0].WordCount)
}

func TestSplitOversizeSentenceIsKeptWhole(t *testing.T) {
	text := makeSentences(1, 1200) + ". " + makeSentences(1, 50)
	chunks := New(DefaultOptions(), NaiveSegmenter{}).Split(text, "Item 8 - Financial Statements")

	require.Len(t, chunks, 2)
	assert.Equal(t, 1200, chunks[0].WordCount)
	assert.Equal(t, 180+50, chunks[1].WordCount)
	assertOverlap(t, chunks, 0.15)
}

func TestSplitDropsShortTail(t *testing.T) {
	text := makeSentences(1, 90) + ". " + makeSentences(1, 30)
	c := New(Options{MinWords: 80, MaxWords: 100, Overlap: 0}, NaiveSegmenter{})

	chunks := c.Split(text, "Item 2 - Properties")

	require.Len(t, chunks, 1)
	assert.Equal(t, 90, chunks[0].WordCount)
}

func TestSplitZeroOverlapStartsFromTriggeringSentence(t *testing.T) {
	text := makeSentences(3, 60)
	c := New(Options{MinWords: 10, MaxWords: 100, Overlap: 0}, NaiveSegmenter{})

	chunks := c.Split(text, "Item 3 - Legal Proceedings")

	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.Equal(t, 60, ch.WordCount)
	}
	assert.True(t, strings.HasPrefix(chunks[1].Text, "s1w0 "))
}

func TestSplitEmptyInput(t *testing.T) {
	chunks := New(DefaultOptions(), NaiveSegmenter{}).Split("", "Item 1 - Business")
	assert.Empty(t, chunks)
}

func TestOptionsDefaults(t *testing.T) {
	tests := []struct {
		name        string
		opts        Options
		wantMax     int
		wantOverlap float64
	}{
		{name: "zero value keeps zero overlap", opts: Options{}, wantMax: DefaultMaxWords, wantOverlap: 0},
		{name: "defaults", opts: DefaultOptions(), wantMax: DefaultMaxWords, wantOverlap: DefaultOverlap},
		{name: "overlap too large", opts: Options{Overlap: 1.5, MaxWords: 500}, wantMax: 500, wantOverlap: DefaultOverlap},
		{name: "negative overlap", opts: Options{Overlap: -0.2}, wantMax: DefaultMaxWords, wantOverlap: DefaultOverlap},
		{name: "custom overlap", opts: Options{Overlap: 0.3}, wantMax: DefaultMaxWords, wantOverlap: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.opts, nil).Options()
			assert.Equal(t, tt.wantMax, got.MaxWords)
			assert.Equal(t, DefaultMinWords, got.MinWords)
			assert.Equal(t, tt.wantOverlap, got.Overlap)
		})
	}
}

type panickySegmenter struct{}

func (panickySegmenter) Sentences(string) []string { panic("tokenizer exploded") }

func TestFallbackSegmenterRecovers(t *testing.T) {
	seg := fallbackSegmenter{primary: panickySegmenter{}, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	got := seg.Sentences("Revenue rose. Costs fell")

	assert.Equal(t, []string{"Revenue rose", "Costs fell"}, got)
}

func TestDefaultSegmenterSplitsSentences(t *testing.T) {
	seg := DefaultSegmenter(slog.New(slog.NewTextHandler(io.Discard, nil)))

	got := seg.Sentences("Revenue increased sharply. Operating costs declined. Margins improved.")

	assert.Equal(t, []string{"Revenue increased sharply.", "Operating costs declined.", "Margins improved."}, got)
}

func TestDefaultSegmenterKeepsPeriodAfterNumber(t *testing.T) {
	seg := DefaultSegmenter(slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Punkt treats "2023." as an ordinal-like token and does not break after it.
	got := seg.Sentences("Revenue increased in fiscal 2023. Operating costs declined. Margins improved.")

	assert.Len(t, got, 2)
}
