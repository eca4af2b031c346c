package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"

	"memvault/features/memory"
)

type stubDocs struct {
	mu         sync.Mutex
	Statuses   []string
	Completed  bool
	Thumbnail  *string
	FailReason string
	StatusErr  error
}

func (s *stubDocs) UpdateStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatusErr != nil {
		return s.StatusErr
	}
	s.Statuses = append(s.Statuses, status)
	return nil
}

func (s *stubDocs) SetCompleted(ctx context.Context, id string, thumbnail *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Completed = true
	s.Thumbnail = thumbnail
	return nil
}

func (s *stubDocs) MarkFailed(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailReason = reason
	return nil
}

type stubChunks struct {
	mu        sync.Mutex
	Batches   [][]string
	Embedded  map[string]pgvector.Vector
	BatchErr  error
	EmbedErr  error
	nextID    int
}

func (s *stubChunks) CreateBatch(ctx context.Context, memoryID string, texts []string) ([]memory.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BatchErr != nil {
		return nil, s.BatchErr
	}
	s.Batches = append(s.Batches, texts)
	chunks := make([]memory.Chunk, len(texts))
	for i, t := range texts {
		s.nextID++
		chunks[i] = memory.Chunk{ID: string(rune('a' + s.nextID)), MemoryID: memoryID, ChunkIndex: i, Text: t}
	}
	return chunks, nil
}

func (s *stubChunks) SetEmbedding(ctx context.Context, chunkID string, vec pgvector.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EmbedErr != nil {
		return s.EmbedErr
	}
	if s.Embedded == nil {
		s.Embedded = map[string]pgvector.Vector{}
	}
	s.Embedded[chunkID] = vec
	return nil
}

type stubFetcher struct {
	body []byte
	err  error
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) { return s.body, s.err }

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Extract(ctx context.Context, raw []byte) (string, error) {
	return s.text, s.err
}

type stubThumbs struct {
	data string
	err  error
}

func (s *stubThumbs) Render(ctx context.Context, raw []byte) (string, error) { return s.data, s.err }

type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	// failOn, when set, fails only the chunk whose text contains it.
	failOn string
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil && (s.failOn == "" || strings.Contains(text, s.failOn)) {
		return nil, s.err
	}
	return []float32{0.1, 0.2}, nil
}

func newTestPipeline(docs *stubDocs, chunks *stubChunks, f *stubFetcher, e *stubExtractor, th *stubThumbs, em *stubEmbedder) *Pipeline {
	return NewPipeline(docs, chunks, f, e, th, em, Options{ChunkSize: 20, ChunkOverlap: 5, Concurrency: 2})
}

func TestPipeline_Success(t *testing.T) {
	docs := &stubDocs{}
	chunks := &stubChunks{}
	thumbs := &stubThumbs{data: "data:image/jpeg;base64,abc"}
	p := newTestPipeline(docs, chunks,
		&stubFetcher{body: []byte("%PDF-1.4")},
		&stubExtractor{text: strings.Repeat("all work and no play ", 5)},
		thumbs,
		&stubEmbedder{},
	)

	err := p.Process(context.Background(), "mem-1", "http://files/a.pdf")
	assert.NoError(t, err)
	assert.Equal(t, []string{memory.StatusProcessing}, docs.Statuses)
	assert.True(t, docs.Completed)
	assert.NotNil(t, docs.Thumbnail)
	assert.Equal(t, thumbs.data, *docs.Thumbnail)

	assert.Len(t, chunks.Batches, 1)
	assert.Len(t, chunks.Embedded, len(chunks.Batches[0]), "every chunk gets an embedding")
}

func TestPipeline_FetchFailure(t *testing.T) {
	docs := &stubDocs{}
	chunks := &stubChunks{}
	p := newTestPipeline(docs, chunks,
		&stubFetcher{err: errors.New("fetch http://files/a.pdf: status 404")},
		&stubExtractor{}, &stubThumbs{}, &stubEmbedder{},
	)

	err := p.Process(context.Background(), "mem-1", "http://files/a.pdf")
	assert.Error(t, err)
	assert.False(t, docs.Completed)
	assert.Contains(t, docs.FailReason, "status 404")
	assert.Empty(t, chunks.Batches, "no chunks persist for a failed fetch")
}

func TestPipeline_ThumbnailFailureIsNotFatal(t *testing.T) {
	docs := &stubDocs{}
	chunks := &stubChunks{}
	p := newTestPipeline(docs, chunks,
		&stubFetcher{body: []byte("%PDF-1.4")},
		&stubExtractor{text: "some extracted text"},
		&stubThumbs{err: errors.New("magick: no decode delegate")},
		&stubEmbedder{},
	)

	err := p.Process(context.Background(), "mem-1", "http://files/a.pdf")
	assert.NoError(t, err)
	assert.True(t, docs.Completed)
	assert.Nil(t, docs.Thumbnail)
}

func TestPipeline_ExtractionFailure(t *testing.T) {
	docs := &stubDocs{}
	chunks := &stubChunks{}
	p := newTestPipeline(docs, chunks,
		&stubFetcher{body: []byte("scanned noise")},
		&stubExtractor{err: ErrNoText},
		&stubThumbs{data: "data:image/jpeg;base64,abc"},
		&stubEmbedder{},
	)

	err := p.Process(context.Background(), "mem-1", "http://files/a.pdf")
	assert.ErrorIs(t, err, ErrNoText)
	assert.Equal(t, ErrNoText.Error(), docs.FailReason)
	assert.Empty(t, chunks.Batches)
	assert.False(t, docs.Completed)
}

func TestPipeline_EmbedFailureFailsDocument(t *testing.T) {
	docs := &stubDocs{}
	chunks := &stubChunks{}
	p := newTestPipeline(docs, chunks,
		&stubFetcher{body: []byte("%PDF-1.4")},
		&stubExtractor{text: strings.Repeat("text to embed ", 10)},
		&stubThumbs{},
		&stubEmbedder{err: errors.New("quota exhausted")},
	)

	err := p.Process(context.Background(), "mem-1", "http://files/a.pdf")
	assert.Error(t, err)
	assert.False(t, docs.Completed, "a document with any failed chunk never completes")
	assert.Contains(t, docs.FailReason, "embed chunk")
}

func TestPipeline_PartialEmbedFailure(t *testing.T) {
	// Only one chunk's embedding fails; the whole document still fails,
	// and already written embeddings are left behind but unreachable.
	docs := &stubDocs{}
	chunks := &stubChunks{}
	extracted := strings.Repeat("aaaa ", 4) + strings.Repeat("POISON ", 4)
	p := newTestPipeline(docs, chunks,
		&stubFetcher{body: []byte("%PDF-1.4")},
		&stubExtractor{text: extracted},
		&stubThumbs{},
		&stubEmbedder{err: errors.New("bad chunk"), failOn: "POISON"},
	)

	err := p.Process(context.Background(), "mem-1", "http://files/a.pdf")
	assert.Error(t, err)
	assert.False(t, docs.Completed)
}

func TestPipeline_MarkProcessingFailure(t *testing.T) {
	docs := &stubDocs{StatusErr: errors.New("db down")}
	p := newTestPipeline(docs, &stubChunks{}, &stubFetcher{}, &stubExtractor{}, &stubThumbs{}, &stubEmbedder{})

	err := p.Process(context.Background(), "mem-1", "http://files/a.pdf")
	assert.Error(t, err)
	assert.False(t, docs.Completed)
}

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, 1500, opts.ChunkSize)
	assert.Equal(t, 200, opts.ChunkOverlap)
	assert.Equal(t, 8, opts.Concurrency)

	// An overlap that would never advance the window is replaced with one
	// that fits the chunk size.
	opts = Options{ChunkSize: 100, ChunkOverlap: 100}.withDefaults()
	assert.Equal(t, 50, opts.ChunkOverlap)
}
