package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"addressd/internal/domain"
)

// MessageRepositoryPG implements domain.MessageRepository backed by PostgreSQL.
type MessageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepositoryPG.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepositoryPG {
	return &MessageRepositoryPG{pool: pool}
}

// Create inserts an inbox entry for a client.
func (r *MessageRepositoryPG) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO messages (id, client_id, sender, subject, body)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, client_id, sender, subject, body, read_at, created_at;
`, msg.ID, msg.ClientID, msg.Sender, msg.Subject, msg.Body)
	return scanMessage(row)
}

// ListByClient returns the newest messages for a client.
func (r *MessageRepositoryPG) ListByClient(ctx context.Context, clientID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, client_id, sender, subject, body, read_at, created_at
FROM messages
WHERE client_id = $1
ORDER BY created_at DESC
LIMIT $2;
`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// MarkRead stamps a message as read; re-reads are no-ops.
func (r *MessageRepositoryPG) MarkRead(ctx context.Context, clientID, messageID string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE messages
SET read_at = COALESCE(read_at, NOW())
WHERE id = $1 AND client_id = $2;
`, messageID, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UnreadCount returns the number of unread messages for a client.
func (r *MessageRepositoryPG) UnreadCount(ctx context.Context, clientID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE client_id = $1 AND read_at IS NULL`, clientID).Scan(&n)
	return n, err
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(&m.ID, &m.ClientID, &m.Sender, &m.Subject, &m.Body, &m.ReadAt, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

var _ domain.MessageRepository = (*MessageRepositoryPG)(nil)
