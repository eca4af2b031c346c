package ingest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memvault/features/memory"
	"memvault/internal/ingest"
	"memvault/internal/retrieval"
	"memvault/internal/testutils"
)

type fakeOCR struct {
	text string
}

func (f *fakeOCR) ExtractText(ctx context.Context, raw []byte) (string, error) {
	if f.text == "" {
		return "", errors.New("nothing recognized")
	}
	return f.text, nil
}

// fakeEmbedder derives a deterministic 768-dim vector from the text so that
// retrieval ordering is reproducible without a remote model.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 768)
	for i, r := range text {
		v[i%768] += float32(r) / 1000
	}
	return v, nil
}

type fakeThumbs struct{}

func (fakeThumbs) Render(ctx context.Context, raw []byte) (string, error) {
	return "data:image/jpeg;base64,ZmFrZQ==", nil
}

type fakeGenerator struct{}

func (fakeGenerator) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	return "Answer grounded in the retrieved memories.", nil
}

func TestIngestionAndRetrieval_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	memoryRepo := memory.NewPostgresRepo(s.DB)
	chunkRepo := memory.NewChunkRepo(s.DB)

	// The uploaded bytes are not a parseable PDF; extraction falls back to
	// the OCR collaborator.
	docText := strings.Repeat("The quarterly report covers revenue and churn. ", 80)
	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4 scanned-only"))
	}))
	defer fileServer.Close()

	pipeline := ingest.NewPipeline(
		memoryRepo,
		chunkRepo,
		ingest.NewHTTPFetcher(),
		ingest.NewTextExtractor(&fakeOCR{text: docText}),
		fakeThumbs{},
		fakeEmbedder{},
		ingest.Options{ChunkSize: 400, ChunkOverlap: 50, Concurrency: 4},
	)

	m := &memory.Memory{
		Type:   memory.TypeDocument,
		Link:   fileServer.URL + "/report.pdf",
		Title:  "Quarterly report",
		Status: memory.StatusPending,
		UserID: "user-1",
	}
	require.NoError(t, memoryRepo.Create(ctx, m))

	require.NoError(t, pipeline.Process(ctx, m.ID, m.Link))

	// Document completed with a thumbnail and searchable chunks.
	got, err := memoryRepo.Get(ctx, m.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, memory.StatusCompleted, got.Status)
	require.NotNil(t, got.Thumbnail)

	count, err := chunkRepo.CountByMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.Greater(t, count, 1, "a long document splits into several chunks")

	// Retrieval over the ingested chunks.
	service := retrieval.NewService(fakeEmbedder{}, chunkRepo, fakeGenerator{}, 5, nil)

	ans, err := service.Answer(ctx, "user-1", "what does the report cover?", "all")
	require.NoError(t, err)
	assert.Equal(t, "Answer grounded in the retrieved memories.", ans.Answer)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, m.ID, ans.Sources[0].ID)

	// The same question from another owner finds nothing.
	ans, err = service.Answer(ctx, "someone-else", "what does the report cover?", "all")
	require.NoError(t, err)
	assert.Equal(t, retrieval.NoMatchesAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
}

func TestIngestion_FetchFailure_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	memoryRepo := memory.NewPostgresRepo(s.DB)
	chunkRepo := memory.NewChunkRepo(s.DB)

	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer fileServer.Close()

	pipeline := ingest.NewPipeline(
		memoryRepo,
		chunkRepo,
		ingest.NewHTTPFetcher(),
		ingest.NewTextExtractor(&fakeOCR{}),
		fakeThumbs{},
		fakeEmbedder{},
		ingest.Options{},
	)

	m := &memory.Memory{
		Type:   memory.TypeDocument,
		Link:   fileServer.URL + "/gone.pdf",
		Status: memory.StatusPending,
		UserID: "user-1",
	}
	require.NoError(t, memoryRepo.Create(ctx, m))

	err := pipeline.Process(ctx, m.ID, m.Link)
	require.Error(t, err)

	got, err := memoryRepo.Get(ctx, m.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, memory.StatusFailed, got.Status)
	assert.NotEmpty(t, got.FailureReason)

	count, err := chunkRepo.CountByMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "a failed fetch leaves no chunks behind")

	// The failure reason is also what a searcher never sees: nothing from
	// this memory is retrievable.
	matches, err := chunkRepo.SearchNearest(ctx, "user-1", pgvector.NewVector(make([]float32, 768)), "all", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
