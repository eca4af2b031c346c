package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"memvault/features/memory"
)

var (
	ErrEmptyQuery = errors.New("query is required")
	ErrRetrieval  = errors.New("retrieval failed")
)

// NoMatchesAnswer is returned verbatim when the owner has no relevant
// chunks; the generative collaborator is not consulted in that case.
const NoMatchesAnswer = "No relevant memories found"

type Answer struct {
	Answer  string          `json:"answer"`
	Sources []memory.Memory `json:"sources"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	SearchNearest(ctx context.Context, userID string, vec pgvector.Vector, typeFilter string, limit int) ([]memory.ChunkMatch, error)
}

type Generator interface {
	GenerateAnswer(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	embedder  Embedder
	searcher  Searcher
	generator Generator
	topK      int
	logger    *QueryLogger
}

func NewService(e Embedder, s Searcher, g Generator, topK int, l *QueryLogger) *Service {
	if topK <= 0 {
		topK = 5
	}
	return &Service{embedder: e, searcher: s, generator: g, topK: topK, logger: l}
}

// Answer embeds the query, ranks the owner's COMPLETED chunks by vector
// distance, and phrases a response from the top matches. Results never cross
// owners: the search itself is scoped to userID.
func (s *Service) Answer(ctx context.Context, userID, query, typeFilter string) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	var numResults int
	defer func() {
		if s.logger != nil {
			s.logger.Log(QueryLogEntry{
				Query:      query,
				NumResults: numResults,
				Duration:   time.Since(start),
			})
		}
	}()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrRetrieval, err)
	}

	matches, err := s.searcher.SearchNearest(ctx, userID, pgvector.NewVector(vec), typeFilter, s.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrRetrieval, err)
	}
	numResults = len(matches)

	if len(matches) == 0 {
		return &Answer{Answer: NoMatchesAnswer, Sources: []memory.Memory{}}, nil
	}

	answer, err := s.generator.GenerateAnswer(ctx, buildPrompt(query, matches))
	if err != nil {
		return nil, fmt.Errorf("%w: generate answer: %v", ErrRetrieval, err)
	}

	return &Answer{Answer: answer, Sources: dedupeSources(matches)}, nil
}

func buildPrompt(query string, matches []memory.ChunkMatch) string {
	var b strings.Builder
	for i, match := range matches {
		fmt.Fprintf(&b, "Memory %d\n", i+1)
		fmt.Fprintf(&b, "Title: %s\n", match.Memory.Title)
		fmt.Fprintf(&b, "Type: %s\n", match.Memory.Type)
		fmt.Fprintf(&b, "Link: %s\n", match.Memory.Link)
		fmt.Fprintf(&b, "Uploaded: %s\n", match.Memory.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "Content:\n%s\n\n", match.Text)
	}

	return fmt.Sprintf(`You are an assistant answering based only on the following user memories:

%s
Question: %q

Answer using ONLY these memories. Cite memory numbers if possible.
`, b.String(), query)
}

// dedupeSources collapses multiple chunks of the same memory into one source,
// keeping first-seen rank order.
func dedupeSources(matches []memory.ChunkMatch) []memory.Memory {
	seen := make(map[string]bool, len(matches))
	sources := make([]memory.Memory, 0, len(matches))
	for _, match := range matches {
		if seen[match.Memory.ID] {
			continue
		}
		seen[match.Memory.ID] = true
		sources = append(sources, match.Memory)
	}
	return sources
}
