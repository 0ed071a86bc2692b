// Package verify implements the credit-gated verification workflow:
// reserve one credit, call the normalization provider, and refund the
// reservation when the provider fails. The reservation is finalized
// implicitly on success.
package verify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"addressd/internal/credit"
	"addressd/internal/domain"
	"addressd/internal/providers/normalize"
	"addressd/internal/providers/postal"
)

// CreditReserver is the slice of the ledger the workflow needs.
type CreditReserver interface {
	TryReserve(ctx context.Context, clientID string) (credit.Reservation, error)
	Refund(ctx context.Context, clientID string) error
	CurrentBalance(ctx context.Context, clientID string) (domain.Credits, error)
}

// PostalCheck reports how the normalized address compares with the PIN
// directory entry. Checked is false when no lookup happened.
type PostalCheck struct {
	Checked       bool   `json:"checked"`
	DistrictMatch bool   `json:"district_match,omitempty"`
	StateMatch    bool   `json:"state_match,omitempty"`
	District      string `json:"district,omitempty"`
	State         string `json:"state,omitempty"`
}

// Result is a completed, charged verification.
type Result struct {
	Address          *normalize.NormalizedAddress `json:"address"`
	PostalCheck      PostalCheck                  `json:"postal_check"`
	RemainingCredits domain.Credits               `json:"remaining_credits"`
}

// Service runs verifications for authenticated clients.
type Service struct {
	ledger     CreditReserver
	normalizer normalize.Normalizer
	directory  postal.Directory
	timeout    time.Duration
	logger     zerolog.Logger
}

func NewService(ledger CreditReserver, normalizer normalize.Normalizer, directory postal.Directory, timeout time.Duration, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		ledger:     ledger,
		normalizer: normalizer,
		directory:  directory,
		timeout:    timeout,
		logger:     logger,
	}
}

// VerifyAddress charges one credit and normalizes rawAddress.
//
// Denied reservations surface as domain.ErrQuotaExceeded, a distinguished
// outcome rather than a generic error, and decrement nothing. Provider
// failures refund the reservation before propagating; a refund failure is
// logged and swallowed so it can never mask the primary error.
func (s *Service) VerifyAddress(ctx context.Context, clientID, rawAddress string) (*Result, error) {
	res, err := s.ledger.TryReserve(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !res.Reserved {
		return nil, domain.ErrQuotaExceeded
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	address, err := s.normalizer.Normalize(callCtx, rawAddress)
	if err != nil {
		s.refund(clientID)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrProviderFailure
		}
		return nil, err
	}

	result := &Result{Address: address, PostalCheck: s.crossCheck(ctx, address)}

	// Re-read the balance: a concurrent admin top-up may have moved it
	// since the reservation.
	balance, err := s.ledger.CurrentBalance(ctx, clientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("client_id", clientID).Msg("balance re-read failed, reporting reservation value")
		balance = res.Remaining
	}
	result.RemainingCredits = balance
	return result, nil
}

// refund is best-effort and detached from the request context so a
// client-side abort cannot cancel it.
func (s *Service) refund(clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ledger.Refund(ctx, clientID); err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("credit refund failed")
	}
}

func (s *Service) crossCheck(ctx context.Context, address *normalize.NormalizedAddress) PostalCheck {
	if s.directory == nil || address.PINCode == "" {
		return PostalCheck{}
	}
	offices, err := s.directory.Lookup(ctx, address.PINCode)
	if err != nil {
		s.logger.Debug().Err(err).Str("pin_code", address.PINCode).Msg("pin directory lookup failed")
		return PostalCheck{}
	}
	check := PostalCheck{
		Checked:  true,
		District: offices[0].District,
		State:    offices[0].State,
	}
	for _, office := range offices {
		if strings.EqualFold(office.District, address.District) {
			check.DistrictMatch = true
		}
		if strings.EqualFold(office.State, address.State) {
			check.StateMatch = true
		}
	}
	return check
}
