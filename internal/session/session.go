// Package session keeps the access token of the file server in the local
// state database and hands it to the remote client.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"drive-go/internal/drive"
	"drive-go/internal/model"
)

// Authenticator exchanges credentials for an access token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Status describes the stored session of one server.
type Status struct {
	LoggedIn  bool
	Username  string
	ExpiresAt *time.Time
	Expired   bool
}

// Manager owns the session of a single server URL.
type Manager struct {
	db        drive.Database
	serverURL string
	clock     drive.Clock
	logger    drive.Logger
}

// NewManager creates a Manager for serverURL backed by db.
func NewManager(db drive.Database, serverURL string, clock drive.Clock, logger drive.Logger) *Manager {
	if clock == nil {
		clock = drive.RealClock{}
	}
	if logger == nil {
		logger = drive.NewNopLogger()
	}
	return &Manager{db: db, serverURL: serverURL, clock: clock, logger: logger}
}

// Init logs in with auth and stores the resulting token, replacing any
// previous session.
func (m *Manager) Init(ctx context.Context, auth Authenticator, username, password string) (*model.Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", drive.ErrValidation)
	}
	token, err := auth.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", username, err)
	}

	claims, err := parseClaims(token)
	if err != nil {
		// opaque tokens are accepted; they simply never expire locally
		m.logger.Warn("access token is not a JWT", "error", err)
		claims = &jwt.RegisteredClaims{}
	}

	sess := &model.Session{
		ServerURL: m.serverURL,
		Username:  username,
		Token:     token,
		CreatedAt: m.clock.Now(),
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		sess.ExpiresAt = &exp
	}
	if err := m.db.SaveSession(sess); err != nil {
		return nil, err
	}
	m.logger.Info("session started", "server", m.serverURL, "username", username)
	return sess, nil
}

// Teardown forgets the stored session. It is not an error when none exists.
func (m *Manager) Teardown() error {
	if err := m.db.DeleteSession(m.serverURL); err != nil {
		return err
	}
	m.logger.Info("session ended", "server", m.serverURL)
	return nil
}

// Token returns the stored access token. It returns ErrUnauthorized when
// there is no session or the token has expired.
func (m *Manager) Token(ctx context.Context) (string, error) {
	sess, err := m.db.FindSession(m.serverURL)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", fmt.Errorf("%w: not logged in to %s", drive.ErrUnauthorized, m.serverURL)
	}
	if sess.Expired(m.clock.Now()) {
		return "", fmt.Errorf("%w: session expired at %s", drive.ErrUnauthorized,
			sess.ExpiresAt.Format(time.RFC3339))
	}
	return sess.Token, nil
}

// Status reports the stored session without contacting the server.
func (m *Manager) Status() (Status, error) {
	sess, err := m.db.FindSession(m.serverURL)
	if err != nil {
		return Status{}, err
	}
	if sess == nil {
		return Status{}, nil
	}
	return Status{
		LoggedIn:  true,
		Username:  sess.Username,
		ExpiresAt: sess.ExpiresAt,
		Expired:   sess.Expired(m.clock.Now()),
	}, nil
}

// parseClaims reads the registered claims of token without verifying its
// signature; only the server holds the key. Expiry is checked by Token
// against the injected clock, not here.
func parseClaims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	return claims, nil
}

// IsUnauthorized reports whether err means the user has to log in again.
func IsUnauthorized(err error) bool {
	return errors.Is(err, drive.ErrUnauthorized)
}
