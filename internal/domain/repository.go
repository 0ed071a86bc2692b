package domain

import (
	"context"
	"time"
)

// ClientRepository defines access to client account records. The four
// credit/session mutators below are the store's atomic primitives: each is a
// single conditional statement, never a read-then-write in application code.
type ClientRepository interface {
	Create(ctx context.Context, client *ClientAccount) (*ClientAccount, error)
	GetByID(ctx context.Context, id string) (*ClientAccount, error)
	GetByUsername(ctx context.Context, username string) (*ClientAccount, error)
	List(ctx context.Context) ([]ClientAccount, error)
	UpdateProfile(ctx context.Context, client *ClientAccount) (*ClientAccount, error)
	Delete(ctx context.Context, id string) error

	// DecrementCreditIfPositive atomically subtracts one credit when the
	// stored numeric balance is strictly positive. It reports the
	// post-decrement balance and whether the conditional update matched.
	// Unlimited accounts never match.
	DecrementCreditIfPositive(ctx context.Context, id string) (remaining int, matched bool, err error)

	// IncrementCredits atomically adds amount to a numeric balance.
	// Unlimited accounts are left untouched.
	IncrementCredits(ctx context.Context, id string, amount int) (*ClientAccount, error)

	// OverwriteCredits sets the balance absolutely.
	OverwriteCredits(ctx context.Context, id string, credits Credits) (*ClientAccount, error)

	// SetActiveSession installs sessionID as the session of record and
	// bumps last activity.
	SetActiveSession(ctx context.Context, id, sessionID string) error

	// ClearActiveSession clears the session. When ifMatches is non-empty
	// the clear only applies while the stored session still equals it;
	// the return reports whether a row was updated.
	ClearActiveSession(ctx context.Context, id, ifMatches string) (bool, error)

	TouchActivity(ctx context.Context, id string, at time.Time) error
}

// MessageRepository persists inbox entries.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) (*Message, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]Message, error)
	MarkRead(ctx context.Context, clientID, messageID string) error
	UnreadCount(ctx context.Context, clientID string) (int, error)
}
