package memory

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, m *Memory) error {
	query := `INSERT INTO memories (type, link, title, description, file_name, status, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query,
		m.Type, m.Link, m.Title, m.Description, m.FileName, m.Status, m.UserID,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id, userID string) (*Memory, error) {
	m := &Memory{}
	query := `SELECT id, type, link, title, description, file_name, thumbnail, status, COALESCE(failure_reason, ''), user_id, created_at
		FROM memories WHERE id = $1 AND user_id = $2`
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&m.ID, &m.Type, &m.Link, &m.Title, &m.Description, &m.FileName,
		&m.Thumbnail, &m.Status, &m.FailureReason, &m.UserID, &m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *PostgresRepo) List(ctx context.Context, userID string) ([]Memory, error) {
	query := `SELECT id, type, link, title, description, file_name, thumbnail, status, COALESCE(failure_reason, ''), user_id, created_at
		FROM memories WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(
			&m.ID, &m.Type, &m.Link, &m.Title, &m.Description, &m.FileName,
			&m.Thumbnail, &m.Status, &m.FailureReason, &m.UserID, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func (r *PostgresRepo) GetStatus(ctx context.Context, id, userID string) (string, error) {
	var status string
	query := `SELECT status FROM memories WHERE id = $1 AND user_id = $2`
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return status, err
}

func (r *PostgresRepo) Delete(ctx context.Context, id, userID string) error {
	query := `DELETE FROM memories WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM memories WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE memories SET status = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

// SetCompleted finalizes a successful ingestion run. A nil thumbnail is
// stored as NULL; rendering is best-effort and its absence is not an error.
func (r *PostgresRepo) SetCompleted(ctx context.Context, id string, thumbnail *string) error {
	query := `UPDATE memories SET status = $1, thumbnail = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusCompleted, thumbnail, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE memories SET status = $1, failure_reason = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusFailed, reason, id)
	return err
}
