package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"

	"memvault/features/memory"
	"memvault/internal/retrieval"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

type stubSearcher struct {
	matches []memory.ChunkMatch
}

func (s *stubSearcher) SearchNearest(ctx context.Context, userID string, vec pgvector.Vector, typeFilter string, limit int) ([]memory.ChunkMatch, error) {
	return s.matches, nil
}

type stubGenerator struct {
	answer string
}

func (s *stubGenerator) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	return s.answer, nil
}

func newTestHandler(e retrieval.Embedder, s retrieval.Searcher, g retrieval.Generator) *Handler {
	return NewHandler(retrieval.NewService(e, s, g, 5, nil))
}

func TestHandler_Search(t *testing.T) {
	matches := []memory.ChunkMatch{{
		ChunkID: "chunk-1",
		Text:    "feed twice a day",
		Memory:  memory.Memory{ID: "mem-1", Type: "document", Title: "Dog care"},
	}}
	h := newTestHandler(&stubEmbedder{vec: []float32{0.1}}, &stubSearcher{matches: matches}, &stubGenerator{answer: "Twice a day."})

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"how often to feed?","type":"all"}`))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Twice a day.")
	assert.Contains(t, rec.Body.String(), `"sources"`)
}

func TestHandler_Search_MissingUser(t *testing.T) {
	h := newTestHandler(&stubEmbedder{}, &stubSearcher{}, &stubGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"q"}`))
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Search_EmptyQuery(t *testing.T) {
	h := newTestHandler(&stubEmbedder{}, &stubSearcher{}, &stubGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"  "}`))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestHandler_Search_InvalidJSON(t *testing.T) {
	h := newTestHandler(&stubEmbedder{}, &stubSearcher{}, &stubGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{broken`))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Search_ServiceFailure(t *testing.T) {
	h := newTestHandler(&stubEmbedder{err: errors.New("quota")}, &stubSearcher{}, &stubGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error performing search")
}

func TestHandler_Search_NoMatches(t *testing.T) {
	h := newTestHandler(&stubEmbedder{vec: []float32{0.1}}, &stubSearcher{}, &stubGenerator{})

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"anything"}`))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), retrieval.NoMatchesAnswer)
}
