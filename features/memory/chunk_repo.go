package memory

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"
)

// ChunkMatch is one nearest-neighbor hit: the chunk text plus the memory it
// belongs to, ranked by vector distance ascending.
type ChunkMatch struct {
	ChunkID  string
	Text     string
	Distance float64
	Memory   Memory
}

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// CreateBatch inserts all chunk rows for a memory in one transaction,
// embeddings NULL. A partially chunked document is never visible.
func (r *ChunkRepo) CreateBatch(ctx context.Context, memoryID string, texts []string) ([]Chunk, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO memory_chunks (memory_id, chunk_index, chunk_text) VALUES ($1, $2, $3) RETURNING id`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	chunks := make([]Chunk, 0, len(texts))
	for i, t := range texts {
		c := Chunk{MemoryID: memoryID, ChunkIndex: i, Text: t}
		if err := stmt.QueryRowContext(ctx, memoryID, i, t).Scan(&c.ID); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// SetEmbedding writes a chunk's vector exactly once; rows that already carry
// an embedding are left untouched.
func (r *ChunkRepo) SetEmbedding(ctx context.Context, chunkID string, vec pgvector.Vector) error {
	query := `UPDATE memory_chunks SET embedding = $1 WHERE id = $2 AND embedding IS NULL`
	_, err := r.db.ExecContext(ctx, query, vec, chunkID)
	return err
}

func (r *ChunkRepo) CountByMemory(ctx context.Context, memoryID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM memory_chunks WHERE memory_id = $1`
	err := r.db.QueryRowContext(ctx, query, memoryID).Scan(&count)
	return count, err
}

// SearchNearest ranks the owner's chunks by distance to vec. Only chunks of
// COMPLETED memories with a stored embedding participate; typeFilter narrows
// by memory type unless it is empty or the "all" sentinel.
func (r *ChunkRepo) SearchNearest(ctx context.Context, userID string, vec pgvector.Vector, typeFilter string, limit int) ([]ChunkMatch, error) {
	query := `SELECT c.id, c.chunk_text, c.embedding <-> $1 AS distance,
			m.id, m.type, m.link, m.title, m.description, m.file_name, m.created_at
		FROM memory_chunks c
		JOIN memories m ON m.id = c.memory_id
		WHERE m.user_id = $2
		  AND m.status = 'COMPLETED'
		  AND c.embedding IS NOT NULL
		  AND ($3 = '' OR m.type = $3)
		ORDER BY c.embedding <-> $1
		LIMIT $4`

	if typeFilter == "all" {
		typeFilter = ""
	}

	rows, err := r.db.QueryContext(ctx, query, vec, userID, typeFilter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var match ChunkMatch
		var createdAt time.Time
		if err := rows.Scan(
			&match.ChunkID, &match.Text, &match.Distance,
			&match.Memory.ID, &match.Memory.Type, &match.Memory.Link,
			&match.Memory.Title, &match.Memory.Description, &match.Memory.FileName,
			&createdAt,
		); err != nil {
			return nil, err
		}
		match.Memory.CreatedAt = createdAt
		match.Memory.UserID = userID
		match.Memory.Status = StatusCompleted
		matches = append(matches, match)
	}
	return matches, rows.Err()
}
