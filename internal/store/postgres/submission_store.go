package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// SubmissionStore implements domain.SubmissionStore using PostgreSQL.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

// Record appends one submitted transaction to the audit trail. Re-recording
// the same transaction id is a no-op so retried cycles stay idempotent.
func (s *SubmissionStore) Record(ctx context.Context, sub domain.Submission) error {
	const query = `
		INSERT INTO submissions (tx_id, contract_id, choice_name, value, feed_utxo, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		sub.TxID, sub.ContractID, sub.ChoiceName, sub.Value, sub.FeedUTxO, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("postgres: record submission %s: %w", sub.TxID, err)
	}
	return nil
}

// ListSince returns submissions made at or after the given time, newest
// first. A limit of zero returns all matching rows.
func (s *SubmissionStore) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.Submission, error) {
	query := `
		SELECT tx_id, contract_id, choice_name, value, feed_utxo, submitted_at
		FROM submissions
		WHERE submitted_at >= $1
		ORDER BY submitted_at DESC`
	args := []any{since}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		var sub domain.Submission
		if err := rows.Scan(&sub.TxID, &sub.ContractID, &sub.ChoiceName,
			&sub.Value, &sub.FeedUTxO, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate submissions: %w", err)
	}
	return subs, nil
}

var _ domain.SubmissionStore = (*SubmissionStore)(nil)
