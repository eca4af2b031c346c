package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"memvault/features/memory"
	"memvault/internal/text"
)

type DocumentStore interface {
	UpdateStatus(ctx context.Context, id, status string) error
	SetCompleted(ctx context.Context, id string, thumbnail *string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type ChunkStore interface {
	CreateBatch(ctx context.Context, memoryID string, texts []string) ([]memory.Chunk, error)
	SetEmbedding(ctx context.Context, chunkID string, vec pgvector.Vector) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Extractor interface {
	Extract(ctx context.Context, raw []byte) (string, error)
}

type Thumbnailer interface {
	Render(ctx context.Context, raw []byte) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Concurrency  int
	EmbedTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1500
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = min(200, o.ChunkSize/2)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = 60 * time.Second
	}
	return o
}

// Pipeline runs one document's ingestion from raw upload to searchable
// chunks. Runs are isolated from each other; the database is the only
// shared state.
type Pipeline struct {
	docs     DocumentStore
	chunks   ChunkStore
	fetcher  Fetcher
	extract  Extractor
	thumbs   Thumbnailer
	embedder Embedder
	opts     Options
}

func NewPipeline(docs DocumentStore, chunks ChunkStore, fetcher Fetcher, extract Extractor, thumbs Thumbnailer, embedder Embedder, opts Options) *Pipeline {
	return &Pipeline{
		docs:     docs,
		chunks:   chunks,
		fetcher:  fetcher,
		extract:  extract,
		thumbs:   thumbs,
		embedder: embedder,
		opts:     opts.withDefaults(),
	}
}

// Process drives the status machine PROCESSING -> COMPLETED | FAILED. Any
// step failure after PROCESSING terminates the run, persists FAILED with the
// triggering reason, and is returned to the caller. There is no retry here;
// a FAILED memory stays FAILED until re-triggered explicitly.
func (p *Pipeline) Process(ctx context.Context, memoryID, fileURL string) error {
	if err := p.docs.UpdateStatus(ctx, memoryID, memory.StatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	err := p.run(ctx, memoryID, fileURL)
	if err != nil {
		slog.ErrorContext(ctx, "ingestion failed", "memory_id", memoryID, "error", err)
		if ferr := p.docs.MarkFailed(ctx, memoryID, err.Error()); ferr != nil {
			slog.ErrorContext(ctx, "failed to persist FAILED status", "memory_id", memoryID, "error", ferr)
		}
		return err
	}

	slog.InfoContext(ctx, "ingestion completed", "memory_id", memoryID)
	return nil
}

func (p *Pipeline) run(ctx context.Context, memoryID, fileURL string) error {
	raw, err := p.fetcher.Fetch(ctx, fileURL)
	if err != nil {
		return err
	}

	// Best-effort: a missing preview never aborts ingestion.
	var thumbnail *string
	if thumb, err := p.thumbs.Render(ctx, raw); err != nil {
		slog.WarnContext(ctx, "thumbnail rendering failed, continuing without", "memory_id", memoryID, "error", err)
	} else {
		thumbnail = &thumb
	}

	content, err := p.extract.Extract(ctx, raw)
	if err != nil {
		return err
	}

	texts := text.Split(content, p.opts.ChunkSize, p.opts.ChunkOverlap)

	chunks, err := p.chunks.CreateBatch(ctx, memoryID, texts)
	if err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	if err := p.embedChunks(ctx, chunks); err != nil {
		return err
	}

	if err := p.docs.SetCompleted(ctx, memoryID, thumbnail); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// embedChunks computes and persists embeddings, fanned out across chunks.
// Each chunk's write is independent, but a single failure fails the whole
// document: the group context cancels outstanding work and the first error
// wins. Embeddings already written stay in place; they are unreachable by
// retrieval because the memory never becomes COMPLETED.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []memory.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for _, c := range chunks {
		g.Go(func() error {
			embedCtx, cancel := context.WithTimeout(gctx, p.opts.EmbedTimeout)
			defer cancel()

			vec, err := p.embedder.Embed(embedCtx, c.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", c.ChunkIndex, err)
			}
			if err := p.chunks.SetEmbedding(embedCtx, c.ID, pgvector.NewVector(vec)); err != nil {
				return fmt.Errorf("store embedding for chunk %d: %w", c.ChunkIndex, err)
			}
			return nil
		})
	}
	return g.Wait()
}
