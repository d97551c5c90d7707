package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"balance-sheets/internal/retry"
)

const (
	subjectPrefix      = "balance-sheets.tasks."
	defaultMaxAttempts = 5
	retryBase          = time.Second
)

// conn is the part of *nats.Conn the queue uses.
type conn interface {
	Publish(subject string, data []byte) error
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	MaxPayload() int64
}

// NewNATS returns a queue on core NATS subjects, one subject per task type.
// Workers of a type share a queue group so each task is handled once.
func NewNATS(log *slog.Logger, nc *nats.Conn) Queue {
	return &natsQueue{log: log, nc: nc}
}

type natsQueue struct {
	log *slog.Logger
	nc  conn
}

func subject(t TaskType) string { return subjectPrefix + string(t) }

func (q *natsQueue) Enqueue(_ context.Context, task Task) error {
	if task.Type == "" {
		return errors.New("task type required")
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode %s task: %w", task.Type, err)
	}
	// Uploaded filing text rides in the payload.
	if limit := q.nc.MaxPayload(); limit > 0 && int64(len(body)) > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(body), limit)
	}
	return q.nc.Publish(subject(task.Type), body)
}

func (q *natsQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	sub, err := q.nc.QueueSubscribe(subject(taskType), "balance-sheets-"+string(taskType), func(msg *nats.Msg) {
		q.handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s tasks: %w", taskType, err)
	}
	q.log.Info("worker listening", "task_type", taskType, "subject", subject(taskType))
	<-ctx.Done()
	return sub.Drain()
}

func (q *natsQueue) handleMessage(ctx context.Context, msg *nats.Msg, handler Handler) {
	var task Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		q.log.Error("dropping undecodable task", "subject", msg.Subject, "err", err)
		return
	}
	log := q.log.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts+1)

	if wait := time.Until(task.NotBefore); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Hand the delayed task back so another worker can take it.
			if err := q.Enqueue(context.Background(), task); err != nil {
				log.Error("lost delayed task on shutdown", "err", err)
			}
			return
		case <-timer.C:
		}
	}

	if err := handler(ctx, task); err != nil {
		q.retryTask(log, task, err)
	}
}

func (q *natsQueue) retryTask(log *slog.Logger, task Task, handlerErr error) {
	task.Attempts++
	if task.MaxAttempts == 0 {
		task.MaxAttempts = defaultMaxAttempts
	}
	if task.Attempts >= task.MaxAttempts {
		log.Error("task failed permanently", "err", handlerErr)
		return
	}

	delay := retry.ExponentialBackoff(task.Attempts, retryBase)
	task.NotBefore = time.Now().Add(delay)
	if err := q.Enqueue(context.Background(), task); err != nil {
		log.Error("failed to re-enqueue task", "handler_err", handlerErr, "err", err)
		return
	}
	log.Warn("task failed, retrying", "err", handlerErr, "retry_in", delay)
}
