package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"balance-sheets/internal/app"
	"balance-sheets/internal/cache"
	"balance-sheets/internal/httputil"
	"balance-sheets/internal/store"
)

const defaultTopK = 5

type searchRequest struct {
	Query   string   `json:"query" validate:"required,min=3,max=500"`
	Tickers []string `json:"tickers" validate:"omitempty,max=50,dive,required,max=10"`
	TopK    int      `json:"top_k" validate:"omitempty,min=1,max=50"`
}

func main() {
	deps, err := app.Build(app.ComponentStore, app.ComponentEmbedder, app.ComponentCache)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	r := httputil.NewRouter(deps.Log)

	r.Post("/api/search", searchHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("query service listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server error", "err", err)
	}
}

func searchHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}

		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		if req.TopK == 0 {
			req.TopK = defaultTopK
		}
		tickers := normalizeTickers(req.Tickers)

		ctx := r.Context()

		cacheKey := cache.GenerateCacheKey(req.Query, tickers, req.TopK)
		if cached, err := deps.Cache.GetQueryResult(ctx, cacheKey); err == nil && cached != nil {
			deps.Log.Info("cache hit", "query", req.Query)
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"query":   cached.Query,
				"sources": cached.Sources,
				"cached":  true,
			})
			return
		} else if err != nil {
			deps.Log.Warn("cache lookup failed", "err", err)
		}

		vec, err := deps.Embedder.Embed(ctx, req.Query)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to embed query", err, http.StatusInternalServerError)
			return
		}
		results, err := deps.Store.Search(ctx, vec, tickers, req.TopK)
		if err != nil {
			httputil.Fail(deps.Log, w, "search failed", err, http.StatusInternalServerError)
			return
		}

		sources := buildSources(results)

		cacheTTL := time.Duration(deps.Config.CacheTTL) * time.Second
		if err := deps.Cache.SetQueryResult(ctx, cacheKey, &cache.QueryResult{
			Query:   req.Query,
			Tickers: tickers,
			Sources: sources,
		}, cacheTTL); err != nil {
			deps.Log.Warn("failed to cache result", "err", err)
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"query":   req.Query,
			"sources": sources,
			"cached":  false,
		})
	}
}

// normalizeTickers upper-cases and de-duplicates the ticker filter.
func normalizeTickers(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// buildSources converts search results into sources with truncated previews.
func buildSources(results []store.SearchResult) []cache.Source {
	sources := make([]cache.Source, len(results))
	for i, res := range results {
		sources[i] = cache.Source{
			ChunkID:    res.Chunk.ID,
			Ticker:     res.Chunk.Ticker,
			FilingDate: res.Chunk.FilingDate,
			Section:    res.Chunk.Section,
			Score:      res.Score,
			Preview:    truncate(res.Chunk.Text, 200),
		}
	}
	return sources
}

// truncate limits text to maxLen bytes, cutting at a word boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if idx := strings.LastIndex(s[:maxLen], " "); idx > 0 {
		return s[:idx] + "..."
	}
	return s[:maxLen] + "..."
}
