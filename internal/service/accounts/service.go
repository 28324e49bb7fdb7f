// Package accounts handles authentication and user administration: login,
// user CRUD, password changes and the bootstrap administrator.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kubikal7/ski-jumping-management/internal/auth"
	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
	"github.com/kubikal7/ski-jumping-management/internal/telemetry"
)

var errBadCredentials = fmt.Errorf("%w: invalid login or password", model.ErrUnauthenticated)

// Service implements the account operations.
type Service struct {
	db     *storage.DB
	jwt    *auth.JWTManager
	teams  *authz.TeamCache
	logger *slog.Logger
	now    func() time.Time
	logins metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithTeamCache sets the cache invalidated when a user's teams change.
func WithTeamCache(c *authz.TeamCache) Option {
	return func(s *Service) { s.teams = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now for last-login stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates an accounts Service issuing tokens with jwt.
func New(db *storage.DB, jwt *auth.JWTManager, opts ...Option) *Service {
	s := &Service{db: db, jwt: jwt, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logins, _ = telemetry.Meter("skijump/accounts").Int64Counter("skijump.auth.logins",
		metric.WithDescription("Login attempts by outcome"),
	)
	return s
}

func (s *Service) countLogin(ctx context.Context, outcome string) {
	s.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Login checks a login/password pair and issues a token. Unknown logins still
// pay for one hash so response times do not reveal which logins exist.
func (s *Service) Login(ctx context.Context, login, password string) (model.LoginResponse, error) {
	u, err := s.db.GetUserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, storage.ErrNotFound) {
		auth.DummyVerify()
		s.countLogin(ctx, "unknown")
		return model.LoginResponse{}, errBadCredentials
	}
	if err != nil {
		return model.LoginResponse{}, storage.Classify(err, "user")
	}

	ok, err := auth.VerifyPassword(password, u.PasswordHash)
	if err != nil {
		s.logger.Warn("accounts: unreadable password hash", "user_id", u.ID, "error", err)
	}
	if !ok {
		s.countLogin(ctx, "bad_password")
		return model.LoginResponse{}, errBadCredentials
	}
	if !u.Active {
		s.countLogin(ctx, "inactive")
		return model.LoginResponse{}, fmt.Errorf("%w: account is inactive", model.ErrUnauthenticated)
	}

	token, exp, err := s.jwt.IssueToken(u)
	if err != nil {
		return model.LoginResponse{}, err
	}
	at := s.now().UTC()
	if err := s.db.TouchLastLogin(ctx, u.ID, at); err != nil {
		s.logger.Warn("accounts: failed to record last login", "user_id", u.ID, "error", err)
	} else {
		u.LastLogin = &at
	}
	s.countLogin(ctx, "success")
	s.logger.Info("accounts: login", "user_id", u.ID)
	return model.LoginResponse{
		Token:              token,
		ExpiresAt:          exp,
		MustChangePassword: u.MustChangePassword,
		User:               u,
	}, nil
}

// SeedAdmin creates the first administrator when the users table is empty.
// It reports whether an account was created.
func (s *Service) SeedAdmin(ctx context.Context, login, password string) (bool, error) {
	n, err := s.db.CountUsers(ctx)
	if err != nil {
		return false, storage.Classify(err, "users")
	}
	if n > 0 {
		return false, nil
	}
	if login == "" || password == "" {
		return false, fmt.Errorf("%w: no users exist and no admin login/password is configured", model.ErrInvalidRequest)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("accounts: hash admin password: %w", err)
	}
	u, err := s.db.CreateUser(ctx, model.User{
		FirstName:    "Admin",
		LastName:     "Admin",
		Login:        login,
		PasswordHash: hash,
		Capabilities: model.Capabilities{model.CapAdmin},
		Active:       true,
	})
	if err != nil {
		return false, storage.Classify(err, "admin user")
	}
	s.logger.Info("accounts: seeded admin", "user_id", u.ID, "login", login)
	return true, nil
}
