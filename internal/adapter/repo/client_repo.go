package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"addressd/internal/domain"
)

const clientColumns = `id, username, password_hash, is_active, plan_name, initial_credits, remaining_credits, active_session_id, validity_end, last_activity_at, created_at, updated_at`

// ClientRepositoryPG implements domain.ClientRepository backed by PostgreSQL.
// The Unlimited sentinel is stored as SQL NULL so the conditional credit
// statements skip unlimited accounts without a separate branch.
type ClientRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewClientRepository creates a new ClientRepositoryPG.
func NewClientRepository(pool *pgxpool.Pool) *ClientRepositoryPG {
	return &ClientRepositoryPG{pool: pool}
}

// Create inserts a new client account.
func (r *ClientRepositoryPG) Create(ctx context.Context, client *domain.ClientAccount) (*domain.ClientAccount, error) {
	query := `
INSERT INTO clients (id, username, password_hash, is_active, plan_name, initial_credits, remaining_credits, validity_end)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + clientColumns + `;
`
	row := r.pool.QueryRow(ctx, query,
		client.ID,
		client.Username,
		client.PasswordHash,
		client.IsActive,
		client.PlanName,
		creditsToDB(client.InitialCredits),
		creditsToDB(client.RemainingCredits),
		client.ValidityEnd,
	)
	created, err := scanClient(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateUsername
		}
		return nil, err
	}
	return created, nil
}

// GetByID fetches a client by UUID.
func (r *ClientRepositoryPG) GetByID(ctx context.Context, id string) (*domain.ClientAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	return scanClient(row)
}

// GetByUsername fetches a client by its unique username.
func (r *ClientRepositoryPG) GetByUsername(ctx context.Context, username string) (*domain.ClientAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE username = $1`, username)
	return scanClient(row)
}

// List returns all client accounts, newest first.
func (r *ClientRepositoryPG) List(ctx context.Context) ([]domain.ClientAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ClientAccount
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateProfile overwrites the mutable account fields.
func (r *ClientRepositoryPG) UpdateProfile(ctx context.Context, client *domain.ClientAccount) (*domain.ClientAccount, error) {
	query := `
UPDATE clients
SET username = $2,
    password_hash = $3,
    is_active = $4,
    plan_name = $5,
    initial_credits = $6,
    remaining_credits = $7,
    validity_end = $8,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + clientColumns + `;
`
	row := r.pool.QueryRow(ctx, query,
		client.ID,
		client.Username,
		client.PasswordHash,
		client.IsActive,
		client.PlanName,
		creditsToDB(client.InitialCredits),
		creditsToDB(client.RemainingCredits),
		client.ValidityEnd,
	)
	return scanClient(row)
}

// Delete removes a client account.
func (r *ClientRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DecrementCreditIfPositive performs the atomic conditional decrement. The
// WHERE clause is the only guard against double-spending the last credit:
// a stored balance of 0 (or NULL for unlimited) matches no row.
func (r *ClientRepositoryPG) DecrementCreditIfPositive(ctx context.Context, id string) (int, bool, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE clients
SET remaining_credits = remaining_credits - 1,
    updated_at = NOW()
WHERE id = $1
  AND remaining_credits > 0
RETURNING remaining_credits;
`, id)
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return remaining, true, nil
}

// IncrementCredits adds amount to a numeric balance; unlimited accounts are
// returned unchanged.
func (r *ClientRepositoryPG) IncrementCredits(ctx context.Context, id string, amount int) (*domain.ClientAccount, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE clients
SET remaining_credits = remaining_credits + $2,
    updated_at = NOW()
WHERE id = $1
  AND remaining_credits IS NOT NULL
RETURNING `+clientColumns+`;
`, id, amount)
	updated, err := scanClient(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	// No row matched: either the account is unlimited (no-op) or missing.
	return r.GetByID(ctx, id)
}

// OverwriteCredits sets the balance absolutely.
func (r *ClientRepositoryPG) OverwriteCredits(ctx context.Context, id string, credits domain.Credits) (*domain.ClientAccount, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE clients
SET remaining_credits = $2,
    updated_at = NOW()
WHERE id = $1
RETURNING `+clientColumns+`;
`, id, creditsToDB(credits))
	return scanClient(row)
}

// SetActiveSession installs the session of record and bumps last activity.
func (r *ClientRepositoryPG) SetActiveSession(ctx context.Context, id, sessionID string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE clients
SET active_session_id = $2,
    last_activity_at = NOW(),
    updated_at = NOW()
WHERE id = $1;
`, id, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearActiveSession clears the session, conditionally when ifMatches is set.
func (r *ClientRepositoryPG) ClearActiveSession(ctx context.Context, id, ifMatches string) (bool, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if ifMatches == "" {
		tag, err = r.pool.Exec(ctx, `
UPDATE clients
SET active_session_id = NULL,
    updated_at = NOW()
WHERE id = $1;
`, id)
	} else {
		tag, err = r.pool.Exec(ctx, `
UPDATE clients
SET active_session_id = NULL,
    updated_at = NOW()
WHERE id = $1
  AND active_session_id = $2;
`, id, ifMatches)
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// TouchActivity records advisory activity time.
func (r *ClientRepositoryPG) TouchActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE clients SET last_activity_at = $2 WHERE id = $1`, id, at)
	return err
}

func creditsToDB(c domain.Credits) *int {
	if c.Unlimited {
		return nil
	}
	v := c.Value
	return &v
}

func creditsFromDB(v *int) domain.Credits {
	if v == nil {
		return domain.UnlimitedCredits()
	}
	return domain.NumericCredits(*v)
}

func scanClient(row pgx.Row) (*domain.ClientAccount, error) {
	var (
		c         domain.ClientAccount
		initial   *int
		remaining *int
		session   *string
	)
	if err := row.Scan(&c.ID, &c.Username, &c.PasswordHash, &c.IsActive, &c.PlanName, &initial, &remaining, &session, &c.ValidityEnd, &c.LastActivityAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	c.InitialCredits = creditsFromDB(initial)
	c.RemainingCredits = creditsFromDB(remaining)
	if session != nil {
		c.ActiveSessionID = *session
	}
	return &c, nil
}

var _ domain.ClientRepository = (*ClientRepositoryPG)(nil)
