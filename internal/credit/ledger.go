// Package credit implements the per-client credit ledger that gates billable
// verification calls. All balance mutations are delegated to the store's
// atomic conditional statements; the ledger itself holds no state and is safe
// for concurrent use across processes.
package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"addressd/internal/domain"
)

// ClientStore is the slice of the client repository the ledger needs.
type ClientStore interface {
	GetByID(ctx context.Context, id string) (*domain.ClientAccount, error)
	DecrementCreditIfPositive(ctx context.Context, id string) (remaining int, matched bool, err error)
	IncrementCredits(ctx context.Context, id string, amount int) (*domain.ClientAccount, error)
	OverwriteCredits(ctx context.Context, id string, credits domain.Credits) (*domain.ClientAccount, error)
}

// Reservation is the outcome of TryReserve. When Reserved is false the
// Remaining field carries the last known balance for display.
type Reservation struct {
	Reserved  bool
	Remaining domain.Credits
}

// Ledger coordinates credit reservations, refunds and admin corrections.
type Ledger struct {
	store  ClientStore
	logger zerolog.Logger
}

func NewLedger(store ClientStore, logger zerolog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// TryReserve spends one credit for the client if any remain. Unlimited
// accounts reserve without mutating the balance. A denial is a normal
// outcome, not an error: callers branch on Reservation.Reserved.
func (l *Ledger) TryReserve(ctx context.Context, clientID string) (Reservation, error) {
	acct, err := l.store.GetByID(ctx, clientID)
	if err != nil {
		return Reservation{}, err
	}
	if !acct.IsActive {
		return Reservation{}, domain.ErrAccountDisabled
	}
	if acct.RemainingCredits.Unlimited {
		return Reservation{Reserved: true, Remaining: domain.UnlimitedCredits()}, nil
	}

	remaining, matched, err := l.store.DecrementCreditIfPositive(ctx, clientID)
	if err != nil {
		return Reservation{}, err
	}
	if !matched {
		// The stored value was 0, or raced to 0 between the read above
		// and the conditional write. Either way: denied.
		return Reservation{Reserved: false, Remaining: domain.NumericCredits(0)}, nil
	}
	return Reservation{Reserved: true, Remaining: domain.NumericCredits(remaining)}, nil
}

// Refund restores one credit after a reservation whose paired external call
// failed. Best-effort: the caller treats a refund failure as a logged loss,
// never as the primary error.
func (l *Ledger) Refund(ctx context.Context, clientID string) error {
	if _, err := l.store.IncrementCredits(ctx, clientID, 1); err != nil {
		return fmt.Errorf("refund credit for %s: %w", clientID, err)
	}
	return nil
}

// CurrentBalance re-reads the balance; concurrent admin top-ups may have
// changed it since the reservation.
func (l *Ledger) CurrentBalance(ctx context.Context, clientID string) (domain.Credits, error) {
	acct, err := l.store.GetByID(ctx, clientID)
	if err != nil {
		return domain.Credits{}, err
	}
	return acct.RemainingCredits, nil
}

// AdminSet overwrites the balance absolutely, for manual correction.
func (l *Ledger) AdminSet(ctx context.Context, clientID string, credits domain.Credits) (*domain.ClientAccount, error) {
	updated, err := l.store.OverwriteCredits(ctx, clientID, credits)
	if err != nil {
		return nil, err
	}
	l.logger.Info().
		Str("client_id", clientID).
		Str("remaining_credits", credits.String()).
		Time("at", time.Now().UTC()).
		Msg("admin credit override")
	return updated, nil
}

// AdminTopUp atomically adds amount credits; a no-op on unlimited accounts.
func (l *Ledger) AdminTopUp(ctx context.Context, clientID string, amount int) (*domain.ClientAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("top-up amount must be positive, got %d", amount)
	}
	return l.store.IncrementCredits(ctx, clientID, amount)
}
