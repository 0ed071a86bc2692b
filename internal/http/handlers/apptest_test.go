package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"addressd/internal/credit"
	"addressd/internal/domain"
	"addressd/internal/infra"
	"addressd/internal/providers/normalize"
	"addressd/internal/session"
	"addressd/internal/token"
	"addressd/internal/verify"
)

const testSecret = "handler-test-secret"

type memStore struct {
	mu       sync.Mutex
	clients  map[string]*domain.ClientAccount
	messages map[string]*domain.Message
}

func newMemStore() *memStore {
	return &memStore{
		clients:  make(map[string]*domain.ClientAccount),
		messages: make(map[string]*domain.Message),
	}
}

func (s *memStore) add(acct *domain.ClientAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *acct
	s.clients[acct.ID] = &cp
}

func (s *memStore) Create(_ context.Context, client *domain.ClientAccount) (*domain.ClientAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.Username == client.Username {
			return nil, domain.ErrDuplicateUsername
		}
	}
	cp := *client
	cp.CreatedAt = time.Now().UTC()
	s.clients[client.ID] = &cp
	out := cp
	return &out, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.ClientAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetByUsername(_ context.Context, username string) (*domain.ClientAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.Username == username {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memStore) List(_ context.Context) ([]domain.ClientAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ClientAccount, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, *c)
	}
	return out, nil
}

func (s *memStore) UpdateProfile(_ context.Context, client *domain.ClientAccount) (*domain.ClientAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.ID]; !ok {
		return nil, domain.ErrNotFound
	}
	cp := *client
	s.clients[client.ID] = &cp
	out := cp
	return &out, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.clients, id)
	return nil
}

func (s *memStore) DecrementCreditIfPositive(_ context.Context, id string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	if c.RemainingCredits.Unlimited || c.RemainingCredits.Value <= 0 {
		return 0, false, nil
	}
	c.RemainingCredits.Value--
	return c.RemainingCredits.Value, true, nil
}

func (s *memStore) IncrementCredits(_ context.Context, id string, amount int) (*domain.ClientAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !c.RemainingCredits.Unlimited {
		c.RemainingCredits.Value += amount
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) OverwriteCredits(_ context.Context, id string, credits domain.Credits) (*domain.ClientAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.RemainingCredits = credits
	cp := *c
	return &cp, nil
}

func (s *memStore) SetActiveSession(_ context.Context, id, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.ActiveSessionID = sessionID
	c.LastActivityAt = time.Now().UTC()
	return nil
}

func (s *memStore) ClearActiveSession(_ context.Context, id, ifMatches string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if ifMatches != "" && c.ActiveSessionID != ifMatches {
		return false, nil
	}
	c.ActiveSessionID = ""
	return true, nil
}

func (s *memStore) TouchActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.LastActivityAt = at
	return nil
}

func (s *memStore) CreateMessage(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	cp.CreatedAt = time.Now().UTC()
	s.messages[msg.ID] = &cp
	out := cp
	return &out, nil
}

var _ domain.ClientRepository = (*memStore)(nil)

type memMessages struct {
	store *memStore
}

func (m memMessages) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	return m.store.CreateMessage(ctx, msg)
}

func (m memMessages) ListByClient(_ context.Context, clientID string, _ int) ([]domain.Message, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.store.messages {
		if msg.ClientID == clientID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m memMessages) MarkRead(_ context.Context, clientID, messageID string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	msg, ok := m.store.messages[messageID]
	if !ok || msg.ClientID != clientID {
		return domain.ErrNotFound
	}
	if msg.ReadAt == nil {
		now := time.Now().UTC()
		msg.ReadAt = &now
	}
	return nil
}

func (m memMessages) UnreadCount(_ context.Context, clientID string) (int, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	n := 0
	for _, msg := range m.store.messages {
		if msg.ClientID == clientID && msg.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

var _ domain.MessageRepository = (memMessages{})

type stubNormalizer struct {
	address *normalize.NormalizedAddress
	err     error
	calls   int
}

func (n *stubNormalizer) Normalize(_ context.Context, _ string) (*normalize.NormalizedAddress, error) {
	n.calls++
	if n.err != nil {
		return nil, n.err
	}
	return n.address, nil
}

// newTestApp wires a full App over in-memory stores. The normalizer stub is
// returned so tests can script provider outcomes.
func newTestApp(store *memStore) (*App, *stubNormalizer) {
	logger := zerolog.Nop()
	issuer := token.NewIssuer(testSecret, time.Hour, 5*time.Minute)
	ledger := credit.NewLedger(store, logger)
	stub := &stubNormalizer{address: &normalize.NormalizedAddress{
		Line1:      "42 MG Road",
		City:       "Bengaluru",
		District:   "Bengaluru",
		State:      "Karnataka",
		PINCode:    "560001",
		Country:    "India",
		Confidence: 0.9,
	}}
	app := &App{
		Config: &infra.Config{
			AdminUsername: "root",
			AdminPassword: "operator-secret",
		},
		Logger:   logger,
		Clients:  store,
		Messages: memMessages{store: store},
		Sessions: session.NewManager(store, issuer, logger),
		Ledger:   ledger,
		Verifier: verify.NewService(ledger, stub, nil, time.Second, logger),
		Tokens:   issuer,
	}
	return app, stub
}

var testClientSeq int

func seedClient(store *memStore, credits domain.Credits, password string) *domain.ClientAccount {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	testClientSeq++
	acct := &domain.ClientAccount{
		ID:               fmt.Sprintf("00000000-0000-0000-0000-%012d", testClientSeq),
		Username:         fmt.Sprintf("acme-%d", testClientSeq),
		PasswordHash:     string(hash),
		IsActive:         true,
		PlanName:         "starter_100",
		InitialCredits:   credits,
		RemainingCredits: credits,
		ValidityEnd:      time.Now().UTC().AddDate(1, 0, 0),
	}
	store.add(acct)
	return acct
}
