package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ChunkPayload asks the chunker for one filing. Text carries an uploaded
// filing; when empty the filing is downloaded from EDGAR by accession, or
// the latest 10-K is used when Accession is empty too.
type ChunkPayload struct {
	Ticker     string `json:"ticker"`
	FilingDate string `json:"filing_date,omitempty"`
	Accession  string `json:"accession_number,omitempty"`
	Text       string `json:"text,omitempty"`
}

// EmbedPayload asks the embedder for the stored chunks of one filing.
type EmbedPayload struct {
	Ticker     string `json:"ticker"`
	FilingDate string `json:"filing_date"`
}

// NewTask builds a task of type t with payload encoded as JSON.
func NewTask(t TaskType, payload any, maxAttempts int) (Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Task{
		ID:          uuid.New(),
		Type:        t,
		Payload:     body,
		MaxAttempts: maxAttempts,
	}, nil
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type, err)
	}
	return nil
}
