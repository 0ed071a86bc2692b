package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"addressd/internal/adapter/repo"
	"addressd/internal/credit"
	"addressd/internal/domain"
	"addressd/internal/infra"
)

// clientadmin is the operator escape hatch: it talks straight to the
// database, bypassing the API, for provisioning and corrections.
func main() {
	_ = godotenv.Load()

	var (
		actionFlag   string
		idFlag       string
		usernameFlag string
		passwordFlag string
		planFlag     string
		creditsFlag  string
		amountFlag   int
	)

	flag.StringVar(&actionFlag, "action", "", "one of: create, set-credits, top-up, force-logout, disable, enable")
	flag.StringVar(&idFlag, "id", "", "client ID (UUID)")
	flag.StringVar(&usernameFlag, "username", "", "client username")
	flag.StringVar(&passwordFlag, "password", "", "password for -action create")
	flag.StringVar(&planFlag, "plan", "", "plan name for -action create, e.g. starter_100 or enterprise_Unlimited")
	flag.StringVar(&creditsFlag, "credits", "", `balance for -action set-credits: a number or "Unlimited"`)
	flag.IntVar(&amountFlag, "amount", 0, "credits to add for -action top-up")
	flag.Parse()

	action := strings.TrimSpace(strings.ToLower(actionFlag))
	if action == "" {
		exitWithError(errors.New("-action is required"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "clientadmin").Logger()
	clients := repo.NewClientRepository(pool)
	ledger := credit.NewLedger(clients, logger)

	if action == "create" {
		runCreate(ctx, clients, usernameFlag, passwordFlag, planFlag)
		return
	}

	acct, err := resolveClient(ctx, clients, idFlag, usernameFlag)
	if err != nil {
		exitWithError(err)
	}

	switch action {
	case "set-credits":
		credits, err := parseCredits(creditsFlag)
		if err != nil {
			exitWithError(err)
		}
		updated, err := ledger.AdminSet(ctx, acct.ID, credits)
		if err != nil {
			exitWithError(fmt.Errorf("failed to set credits: %w", err))
		}
		fmt.Printf("client %s credits set to %s\n", updated.Username, updated.RemainingCredits)
	case "top-up":
		updated, err := ledger.AdminTopUp(ctx, acct.ID, amountFlag)
		if err != nil {
			exitWithError(fmt.Errorf("failed to top up: %w", err))
		}
		fmt.Printf("client %s balance is now %s\n", updated.Username, updated.RemainingCredits)
	case "force-logout":
		if _, err := clients.ClearActiveSession(ctx, acct.ID, ""); err != nil {
			exitWithError(fmt.Errorf("failed to force logout: %w", err))
		}
		fmt.Printf("client %s logged out\n", acct.Username)
	case "disable", "enable":
		acct.IsActive = action == "enable"
		updated, err := clients.UpdateProfile(ctx, acct)
		if err != nil {
			exitWithError(fmt.Errorf("failed to update client: %w", err))
		}
		fmt.Printf("client %s is_active=%t\n", updated.Username, updated.IsActive)
	default:
		exitWithError(fmt.Errorf("unsupported action %q", actionFlag))
	}
}

func runCreate(ctx context.Context, clients *repo.ClientRepositoryPG, username, password, plan string) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 8 {
		exitWithError(errors.New("-username and a -password of at least 8 characters are required"))
	}
	credits, err := domain.CreditsForPlan(plan)
	if err != nil {
		exitWithError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		exitWithError(fmt.Errorf("failed to hash password: %w", err))
	}
	created, err := clients.Create(ctx, &domain.ClientAccount{
		ID:               uuid.NewString(),
		Username:         username,
		PasswordHash:     string(hash),
		IsActive:         true,
		PlanName:         plan,
		InitialCredits:   credits,
		RemainingCredits: credits,
		ValidityEnd:      time.Now().UTC().AddDate(1, 0, 0),
	})
	if err != nil {
		exitWithError(fmt.Errorf("failed to create client: %w", err))
	}
	fmt.Printf("created client %s (%s) on plan %s with %s credits\n", created.ID, created.Username, created.PlanName, created.RemainingCredits)
}

func resolveClient(ctx context.Context, clients *repo.ClientRepositoryPG, id, username string) (*domain.ClientAccount, error) {
	id = strings.TrimSpace(id)
	username = strings.TrimSpace(username)
	switch {
	case id != "":
		return clients.GetByID(ctx, id)
	case username != "":
		return clients.GetByUsername(ctx, username)
	default:
		return nil, errors.New("either -id or -username must be provided")
	}
}

func parseCredits(raw string) (domain.Credits, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Credits{}, errors.New("-credits is required")
	}
	if strings.EqualFold(raw, domain.UnlimitedToken) {
		return domain.UnlimitedCredits(), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return domain.Credits{}, fmt.Errorf("invalid credits value %q", raw)
	}
	return domain.NumericCredits(n), nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
