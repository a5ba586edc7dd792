package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"biblioteca/pkg/auth"
	"biblioteca/pkg/domain"
	"biblioteca/pkg/storage"
	"biblioteca/pkg/store"
)

// MetadataLookup supplies optional catalog prefill data for an ISBN. A nil
// result with nil error means no data is available.
type MetadataLookup interface {
	LookupISBN(ctx context.Context, isbn string) (*domain.BookMetadata, error)
}

// Policy holds the loan and fine policy constants, validated at startup.
type Policy struct {
	GracePeriod   time.Duration
	DailyLateRate decimal.Decimal
	FineSchedule  map[domain.FineType]decimal.Decimal
	DefaultFine   decimal.Decimal
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	Store         store.Store
	Sessions      store.SessionStore
	Covers        storage.ObjectStore
	Lookup        MetadataLookup
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	SessionTTL    time.Duration

	GracePeriodDays int
	DailyLateRate   string
	FineSchedule    map[string]string
	DefaultFine     string
}

// App wires storage, sessions, and the loan/fine policy together. All state
// transitions run through it.
type App struct {
	store    store.Store
	sessions store.SessionStore
	covers   storage.ObjectStore
	lookup   MetadataLookup
	policy   Policy

	// clock is swappable in tests.
	clock func() time.Time
}

// New constructs the application and validates the fine policy.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		switch {
		case cfg.JWTSecret != "":
			sessionStore = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL)
		case cfg.RedisAddr != "":
			sessionStore = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
		default:
			return nil, fmt.Errorf("session store required (jwtSecret or redisAddr)")
		}
	}

	policy, err := buildPolicy(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
		covers:   cfg.Covers,
		lookup:   cfg.Lookup,
		policy:   policy,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func buildPolicy(cfg Config) (Policy, error) {
	days := cfg.GracePeriodDays
	if days == 0 {
		days = 14
	}
	if days < 0 {
		return Policy{}, fmt.Errorf("grace period days must be positive, got %d", days)
	}

	rate, err := parseAmount(cfg.DailyLateRate, "0.50")
	if err != nil {
		return Policy{}, fmt.Errorf("daily late rate: %w", err)
	}

	schedule := map[domain.FineType]decimal.Decimal{
		domain.FineDamaged: decimal.RequireFromString("5.00"),
		domain.FineLost:    decimal.RequireFromString("9.00"),
	}
	for name, raw := range cfg.FineSchedule {
		fineType := domain.FineType(name)
		if !domain.KnownFineType(fineType) {
			return Policy{}, fmt.Errorf("fine schedule: unknown type %q", name)
		}
		amount, err := parseAmount(raw, "")
		if err != nil {
			return Policy{}, fmt.Errorf("fine schedule %q: %w", name, err)
		}
		schedule[fineType] = amount
	}

	defaultFine, err := parseAmount(cfg.DefaultFine, "2.00")
	if err != nil {
		return Policy{}, fmt.Errorf("default fine: %w", err)
	}

	return Policy{
		GracePeriod:   time.Duration(days) * 24 * time.Hour,
		DailyLateRate: rate,
		FineSchedule:  schedule,
		DefaultFine:   defaultFine,
	}, nil
}

func parseAmount(raw, fallback string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	if raw == "" {
		return decimal.Decimal{}, errors.New("amount required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("amount %s must not be negative", amount)
	}
	return amount, nil
}

// Register creates a client account. The first registered user becomes an
// admin so a fresh install is manageable.
func (a *App) Register(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return domain.User{}, "", errors.New("username and password required")
	}
	taken, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check username: %w", err)
	}
	if taken {
		return domain.User{}, "", fmt.Errorf("username %q: %w", username, ErrAlreadyExists)
	}
	roles := []domain.Role{domain.RoleClient}
	count, err := a.store.UserCount()
	if err != nil {
		return domain.User{}, "", fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		roles = []domain.Role{domain.RoleAdmin}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := a.clock()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Roles:        roles,
		Superuser:    count == 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// CreateStaff creates an account with an explicit role set. Admin only.
func (a *App) CreateStaff(actor domain.Actor, username, password string, roles []domain.Role) (domain.User, error) {
	if !actor.IsAdmin() {
		return domain.User{}, fmt.Errorf("create staff: %w", ErrForbidden)
	}
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return domain.User{}, errors.New("username and password required")
	}
	if len(roles) == 0 {
		roles = []domain.Role{domain.RoleLibrarian}
	}
	taken, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return domain.User{}, fmt.Errorf("username %q: %w", username, ErrAlreadyExists)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.clock()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", errors.New("invalid credentials")
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates a session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserByToken resolves a session token into a user.
func (a *App) UserByToken(token string) (domain.User, bool, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	return a.store.GetUserByID(userID)
}

// ListUsers returns all accounts. Admin only.
func (a *App) ListUsers(actor domain.Actor) ([]domain.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("list users: %w", ErrForbidden)
	}
	return a.store.ListUsers()
}
