package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"memvault/internal/config"
	"memvault/internal/middleware"
)

// Memory types. Only "document" runs through the ingestion pipeline.
const (
	TypeDocument = "document"
	TypeLink     = "link"
	TypeVideo    = "video"
	TypeTweet    = "tweet"
	TypeNote     = "note"
)

// Statuses are monotonic: PENDING -> PROCESSING -> COMPLETED | FAILED.
// Only the ingestion pipeline moves a memory past PENDING.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

var (
	ErrNotFound    = errors.New("memory not found")
	ErrInvalidType = errors.New("invalid memory type")
)

type Memory struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Link          string    `json:"link"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	FileName      string    `json:"fileName,omitempty"`
	Thumbnail     *string   `json:"thumbnail,omitempty"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	UserID        string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Chunk is one slice of a document's extracted text. The embedding stays
// NULL until the pipeline computes it; once set it is never rewritten.
type Chunk struct {
	ID         string
	MemoryID   string
	ChunkIndex int
	Text       string
}

func ValidType(t string) bool {
	switch t {
	case TypeDocument, TypeLink, TypeVideo, TypeTweet, TypeNote:
		return true
	}
	return false
}

type Repository interface {
	Create(ctx context.Context, m *Memory) error
	Get(ctx context.Context, id, userID string) (*Memory, error)
	List(ctx context.Context, userID string) ([]Memory, error)
	GetStatus(ctx context.Context, id, userID string) (string, error)
	Delete(ctx context.Context, id, userID string) error
	Count(ctx context.Context, userID string) (int, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// IngestTask is the payload published per uploaded document.
type IngestTask struct {
	MemoryID      string `json:"memory_id"`
	FileURL       string `json:"file_url"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Create persists a memory for its owner. Non-document types have nothing to
// ingest and are completed on the spot; documents start PENDING and an
// ingestion task is published fire-and-forget. The caller never waits on the
// pipeline.
func (s *Service) Create(ctx context.Context, m *Memory) error {
	if !ValidType(m.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidType, m.Type)
	}

	if m.Type == TypeDocument {
		m.Status = StatusPending
	} else {
		m.Status = StatusCompleted
	}

	if err := s.repo.Create(ctx, m); err != nil {
		return err
	}

	if m.Type != TypeDocument {
		return nil
	}

	payload, _ := json.Marshal(IngestTask{
		MemoryID:      m.ID,
		FileURL:       m.Link,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIngestDocument, payload); err != nil {
		// A memory stuck in PENDING is never picked up; surface the
		// failure on the record instead.
		slog.ErrorContext(ctx, "failed to publish ingest task", "error", err, "memory_id", m.ID)
		if ferr := s.repo.MarkFailed(ctx, m.ID, "failed to enqueue ingestion task"); ferr != nil {
			slog.ErrorContext(ctx, "failed to mark memory failed", "error", ferr, "memory_id", m.ID)
		}
		m.Status = StatusFailed
		return nil
	}

	slog.InfoContext(ctx, "published ingest task", "memory_id", m.ID, "file_url", m.Link)
	return nil
}

func (s *Service) Get(ctx context.Context, id, userID string) (*Memory, error) {
	return s.repo.Get(ctx, id, userID)
}

func (s *Service) List(ctx context.Context, userID string) ([]Memory, error) {
	return s.repo.List(ctx, userID)
}

func (s *Service) Status(ctx context.Context, id, userID string) (string, error) {
	return s.repo.GetStatus(ctx, id, userID)
}

// Delete removes a memory; its chunks go with it via the FK cascade.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	return s.repo.Delete(ctx, id, userID)
}

func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	return s.repo.Count(ctx, userID)
}
