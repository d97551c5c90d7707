package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"balance-sheets/internal/app"
	"balance-sheets/internal/cache"
	"balance-sheets/internal/chunker"
	"balance-sheets/internal/config"
	"balance-sheets/internal/edgar"
	"balance-sheets/internal/filing"
	"balance-sheets/internal/metadata"
	"balance-sheets/internal/queue"
	"balance-sheets/internal/sections"
	"balance-sheets/internal/store"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) LookupCIK(ctx context.Context, ticker string) (string, error) {
	args := m.Called(ctx, ticker)
	return args.String(0), args.Error(1)
}

func (m *mockSource) FetchFiling(ctx context.Context, ref edgar.FilingRef) (filing.Filing, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(filing.Filing), args.Error(1)
}

func (m *mockSource) Latest10K(ctx context.Context, ticker string) (filing.Filing, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(filing.Filing), args.Error(1)
}

func prose(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		b.WriteString("revenue")
		if i%10 == 0 {
			b.WriteString(". ")
		} else {
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

var tenK = "ITEM 1. BUSINESS\n" + prose(600) + "\nITEM 1A. RISK FACTORS\n" + prose(50) + "\nSIGNATURES\nJane Roe"

func newTestWorker(t *testing.T, st store.Store, q queue.Queue, c cache.Cache, src filingSource) *worker {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	seg := chunker.NaiveSegmenter{}
	return &worker{
		deps: app.Deps{
			Store:  st,
			Queue:  q,
			Cache:  c,
			Config: config.Config{OutputDir: t.TempDir()},
			Log:    log,
		},
		source: src,
		processor: filing.NewProcessor(
			sections.NewLocator(sections.DefaultRules()),
			chunker.New(chunker.DefaultOptions(), seg),
			metadata.NewExtractor(seg),
			log,
		),
	}
}

func isEmbedTask(ticker, date string) any {
	return mock.MatchedBy(func(task queue.Task) bool {
		if task.Type != queue.TaskTypeEmbed {
			return false
		}
		var p queue.EmbedPayload
		if err := task.Decode(&p); err != nil {
			return false
		}
		return p.Ticker == ticker && p.FilingDate == date
	})
}

func TestHandleChunk(t *testing.T) {
	fetched := filing.Filing{Ticker: "MSFT", FilingDate: "2024-07-30", Accession: "0000950170-24-087843", Text: tenK}

	tests := []struct {
		name     string
		payload  queue.ChunkPayload
		setup    func(*store.MockStore, *queue.MockQueue, *cache.MockCache, *mockSource)
		wantErr  bool
		wantFile string
	}{
		{
			name: "uploaded text",
			payload: queue.ChunkPayload{
				Ticker:     "aapl",
				FilingDate: "2024-11-01",
				Text:       tenK,
			},
			setup: func(s *store.MockStore, q *queue.MockQueue, c *cache.MockCache, _ *mockSource) {
				s.On("SaveChunks", mock.Anything, mock.MatchedBy(func(chunks []store.Chunk) bool {
					return len(chunks) == 2 &&
						chunks[0].ID == "AAPL_2024-11-01_0" &&
						chunks[1].Section == "Item 1A - Risk Factors"
				})).Return(nil).Once()
				c.On("InvalidateTicker", mock.Anything, "AAPL").Return(nil).Once()
				q.On("Enqueue", mock.Anything, isEmbedTask("AAPL", "2024-11-01")).Return(nil).Once()
			},
			wantFile: "AAPL_10K_2024-11-01.parquet",
		},
		{
			name: "download by accession",
			payload: queue.ChunkPayload{
				Ticker:     "MSFT",
				FilingDate: "2024-07-30",
				Accession:  "0000950170-24-087843",
			},
			setup: func(s *store.MockStore, q *queue.MockQueue, c *cache.MockCache, src *mockSource) {
				src.On("LookupCIK", mock.Anything, "MSFT").Return("0000789019", nil).Once()
				src.On("FetchFiling", mock.Anything, edgar.FilingRef{
					Ticker:     "MSFT",
					CIK:        "0000789019",
					Accession:  "0000950170-24-087843",
					FilingDate: "2024-07-30",
				}).Return(fetched, nil).Once()
				s.On("SaveChunks", mock.Anything, mock.MatchedBy(func(chunks []store.Chunk) bool {
					return len(chunks) == 2 && chunks[0].Accession == "0000950170-24-087843"
				})).Return(nil).Once()
				c.On("InvalidateTicker", mock.Anything, "MSFT").Return(nil).Once()
				q.On("Enqueue", mock.Anything, isEmbedTask("MSFT", "2024-07-30")).Return(nil).Once()
			},
			wantFile: "MSFT_10K_2024-07-30.parquet",
		},
		{
			name:    "latest filing when no accession",
			payload: queue.ChunkPayload{Ticker: "MSFT"},
			setup: func(s *store.MockStore, q *queue.MockQueue, c *cache.MockCache, src *mockSource) {
				src.On("Latest10K", mock.Anything, "MSFT").Return(fetched, nil).Once()
				s.On("SaveChunks", mock.Anything, mock.Anything).Return(nil).Once()
				c.On("InvalidateTicker", mock.Anything, "MSFT").Return(errors.New("redis down")).Once()
				q.On("Enqueue", mock.Anything, isEmbedTask("MSFT", "2024-07-30")).Return(nil).Once()
			},
		},
		{
			name: "filing without sections is acknowledged",
			payload: queue.ChunkPayload{
				Ticker:     "XYZ",
				FilingDate: "2024-01-01",
				Text:       "nothing that looks like an item heading",
			},
			setup: func(*store.MockStore, *queue.MockQueue, *cache.MockCache, *mockSource) {},
		},
		{
			name:    "download failure",
			payload: queue.ChunkPayload{Ticker: "NOPE"},
			setup: func(_ *store.MockStore, _ *queue.MockQueue, _ *cache.MockCache, src *mockSource) {
				src.On("Latest10K", mock.Anything, "NOPE").Return(filing.Filing{}, edgar.ErrTickerNotFound).Once()
			},
			wantErr: true,
		},
		{
			name: "store failure",
			payload: queue.ChunkPayload{
				Ticker:     "AAPL",
				FilingDate: "2024-11-01",
				Text:       tenK,
			},
			setup: func(s *store.MockStore, _ *queue.MockQueue, _ *cache.MockCache, _ *mockSource) {
				s.On("SaveChunks", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := new(store.MockStore)
			q := new(queue.MockQueue)
			c := new(cache.MockCache)
			src := new(mockSource)
			tt.setup(st, q, c, src)

			w := newTestWorker(t, st, q, c, src)
			err := w.handleChunk(context.Background(), tt.payload)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			if tt.wantFile != "" {
				_, statErr := os.Stat(filepath.Join(w.deps.Config.OutputDir, tt.wantFile))
				assert.NoError(t, statErr)
			}
			st.AssertExpectations(t)
			q.AssertExpectations(t)
			c.AssertExpectations(t)
			src.AssertExpectations(t)
		})
	}
}
