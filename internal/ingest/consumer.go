package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"memvault/features/job"
	"memvault/features/memory"
	"memvault/internal/middleware"
)

type Processor interface {
	Process(ctx context.Context, memoryID, fileURL string) error
}

// defaultTouchInterval keeps well inside nsqd's 60s default message timeout.
const defaultTouchInterval = 30 * time.Second

// Consumer turns queued ingest tasks into pipeline runs. It always returns
// nil to NSQ: the outcome lives in the memory's status, and redelivery would
// violate the no-automatic-retry contract. Failed tasks are preserved in the
// failed-jobs table for manual retry instead.
type Consumer struct {
	pipeline   Processor
	jobs       job.Repository
	touchEvery time.Duration
}

func NewConsumer(pipeline Processor, jobs job.Repository) *Consumer {
	return &Consumer{pipeline: pipeline, jobs: jobs, touchEvery: defaultTouchInterval}
}

func (c *Consumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task memory.IngestTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill: invalid JSON, don't retry.
		slog.Error("poison pill: invalid ingest task", "error", err)
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if task.MemoryID == "" || task.FileURL == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping task", "memory_id", task.MemoryID, "file_url", task.FileURL)
		return nil
	}

	// A pipeline run routinely outlives nsqd's message timeout (fetch, ocr,
	// dozens of embedding calls). Take over the response and touch the
	// message while working, so nsqd never requeues a task mid-run and
	// starts a second pipeline on the same memory.
	m.DisableAutoResponse()
	defer m.Finish()

	done := make(chan struct{})
	defer close(done)
	go c.keepAlive(m, done)

	if err := c.pipeline.Process(ctx, task.MemoryID, task.FileURL); err != nil {
		failed := &job.Job{
			MemoryID: task.MemoryID,
			Handler:  "ingest-pipeline",
			Payload:  json.RawMessage(m.Body),
			Error:    err.Error(),
		}
		if saveErr := c.jobs.Save(ctx, failed); saveErr != nil {
			slog.ErrorContext(ctx, "failed to save failed job", "error", saveErr, "memory_id", task.MemoryID)
		} else {
			slog.InfoContext(ctx, "saved failed job for manual retry", "job_id", failed.ID, "memory_id", task.MemoryID)
		}
	}

	return nil
}

func (c *Consumer) keepAlive(m *nsq.Message, done <-chan struct{}) {
	ticker := time.NewTicker(c.touchEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.Touch()
		}
	}
}
