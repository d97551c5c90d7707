package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"balance-sheets/internal/retry"
)

// TaskType names the pipeline stage a task feeds.
type TaskType string

const (
	// TaskTypeChunk turns one 10-K into stored chunks.
	TaskTypeChunk TaskType = "chunk"
	// TaskTypeEmbed embeds the stored chunks of one filing.
	TaskTypeEmbed TaskType = "embed"
)

// ErrPayloadTooLarge is returned when a task does not fit in one message.
var ErrPayloadTooLarge = errors.New("task payload exceeds message size limit")

// Task is one chunk or embed job travelling between the gateway, the
// chunker and the embedder.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

type Handler func(context.Context, Task) error

// Queue delivers tasks to one worker per task type.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// EnqueueWithRetry publishes task, retrying transient broker failures with
// exponential backoff. Oversized payloads fail at once.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	return retry.Do(ctx, attempts, base, func(ctx context.Context) error {
		err := q.Enqueue(ctx, task)
		if errors.Is(err, ErrPayloadTooLarge) {
			return retry.Permanent(err)
		}
		return err
	}, nil)
}
