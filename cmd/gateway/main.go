package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ledongthuc/pdf"

	"balance-sheets/internal/app"
	"balance-sheets/internal/edgar"
	"balance-sheets/internal/httputil"
	"balance-sheets/internal/queue"
	"balance-sheets/internal/store"
)

// filingLister finds the 10-Ks to enqueue for a ticker.
type filingLister interface {
	Recent10Ks(ctx context.Context, ticker string, n int) ([]edgar.FilingRef, error)
}

type filingsRequest struct {
	Ticker string `json:"ticker" validate:"required,max=10"`
	Years  int    `json:"years" validate:"omitempty,min=1,max=10"`
}

type uploadForm struct {
	Ticker     string `validate:"required,max=10"`
	FilingDate string `validate:"required,datetime=2006-01-02"`
	Accession  string `validate:"omitempty,max=25"`
}

type queuedFiling struct {
	Accession  string `json:"accession_number"`
	FilingDate string `json:"filing_date"`
}

func main() {
	deps, err := app.Build(app.ComponentStore, app.ComponentQueue)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	sec, err := app.NewEDGAR(deps.Config, deps.Log)
	if err != nil {
		deps.Log.Error("failed to build EDGAR client", "err", err)
		os.Exit(1)
	}
	r := httputil.NewRouter(deps.Log)

	r.Post("/api/filings", filingsHandler(deps, sec))
	r.Post("/api/filings/upload", uploadHandler(deps))
	r.Get("/api/companies/{ticker}", companyHandler(deps))
	r.Post("/api/search", searchHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func filingsHandler(deps app.Deps, lister filingLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req filingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		if req.Years == 0 {
			req.Years = 1
		}
		ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
		ctx := r.Context()

		refs, err := lister.Recent10Ks(ctx, ticker, req.Years)
		switch {
		case errors.Is(err, edgar.ErrTickerNotFound), errors.Is(err, edgar.ErrNoFiling):
			httputil.Fail(deps.Log, w, err.Error(), err, http.StatusNotFound)
			return
		case err != nil:
			httputil.Fail(deps.Log, w, "EDGAR lookup failed", err, http.StatusBadGateway)
			return
		}

		queued := make([]queuedFiling, 0, len(refs))
		for _, ref := range refs {
			err := enqueueChunk(ctx, deps, queue.ChunkPayload{
				Ticker:     ref.Ticker,
				FilingDate: ref.FilingDate,
				Accession:  ref.Accession,
			})
			if err != nil {
				httputil.Fail(deps.Log.With("ticker", ticker, "queued", len(queued)), w, "failed to enqueue filing; please retry", err, http.StatusInternalServerError)
				return
			}
			queued = append(queued, queuedFiling{Accession: ref.Accession, FilingDate: ref.FilingDate})
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"ticker":  ticker,
			"filings": queued,
			"status":  "queued",
		})
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Validate file size before parsing
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		form := uploadForm{
			Ticker:     strings.ToUpper(strings.TrimSpace(r.FormValue("ticker"))),
			FilingDate: strings.TrimSpace(r.FormValue("filing_date")),
			Accession:  strings.TrimSpace(r.FormValue("accession_number")),
		}
		if err := httputil.Validator.Struct(&form); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		contentType := header.Header.Get("Content-Type")
		if i := strings.Index(contentType, ";"); i >= 0 {
			contentType = strings.TrimSpace(contentType[:i])
		}

		// If Content-Type is missing, detect from filename
		if contentType == "" {
			switch strings.ToLower(filepath.Ext(header.Filename)) {
			case ".txt":
				contentType = "text/plain"
			case ".htm", ".html":
				contentType = "text/html"
			case ".pdf":
				contentType = "application/pdf"
			default:
				httputil.Fail(deps.Log, w, "unsupported file type (only PDF, HTML and TXT allowed)", nil, http.StatusBadRequest)
				return
			}
		}

		allowedTypes := map[string]bool{
			"text/plain":      true,
			"text/html":       true,
			"application/pdf": true,
		}
		if !allowedTypes[contentType] {
			httputil.Fail(deps.Log, w, "unsupported file type (only PDF, HTML and TXT allowed)", nil, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}
		text := extractText(contentType, content, deps)
		if strings.TrimSpace(text) == "" {
			httputil.Fail(deps.Log, w, "no text found in file", nil, http.StatusBadRequest)
			return
		}

		err = enqueueChunk(ctx, deps, queue.ChunkPayload{
			Ticker:     form.Ticker,
			FilingDate: form.FilingDate,
			Accession:  form.Accession,
			Text:       text,
		})
		if err != nil {
			httputil.Fail(deps.Log.With("ticker", form.Ticker), w, "failed to enqueue filing; please retry", err, http.StatusInternalServerError)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"ticker":      form.Ticker,
			"filing_date": form.FilingDate,
			"chars":       len(text),
			"status":      "queued",
		})
	}
}

func enqueueChunk(ctx context.Context, deps app.Deps, payload queue.ChunkPayload) error {
	task, err := queue.NewTask(queue.TaskTypeChunk, payload, 3)
	if err != nil {
		return err
	}
	return queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond)
}

func companyHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
		if ticker == "" {
			httputil.Fail(deps.Log, w, "ticker is required", nil, http.StatusBadRequest)
			return
		}
		overview, err := deps.Store.GetCompany(r.Context(), ticker)
		if errors.Is(err, store.ErrCompanyNotFound) {
			httputil.Fail(deps.Log.With("ticker", ticker), w, "company not found", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log.With("ticker", ticker), w, "failed to load company", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, overview)
	}
}

func searchHandler(deps app.Deps) http.HandlerFunc {
	queryURL := deps.Config.QueryURL
	client := &http.Client{Timeout: 60 * time.Second}

	return func(w http.ResponseWriter, r *http.Request) {
		// Forward request to query service
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, queryURL, r.Body)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to create request", err, http.StatusInternalServerError)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			httputil.Fail(deps.Log, w, "query service unavailable", err, http.StatusServiceUnavailable)
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			deps.Log.Error("failed to copy response", "err", err)
		}
	}
}

// extractText extracts text from uploaded files by content type.
func extractText(contentType string, content []byte, deps app.Deps) string {
	switch contentType {
	case "application/pdf":
		text, err := extractPDF(content)
		if err != nil {
			deps.Log.Warn("pdf extraction failed", "err", err)
			return ""
		}
		return text
	case "text/html":
		text, err := edgar.HTMLText(bytes.NewReader(content))
		if err != nil {
			deps.Log.Warn("html extraction failed, using raw text", "err", err)
			return string(content)
		}
		return text
	}
	// A full EDGAR submission is unwrapped; anything else is used as is.
	if text, err := edgar.ExtractText(string(content)); err == nil {
		return text
	}
	return string(content)
}

func extractPDF(content []byte) (string, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", err
	}

	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()

	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}
