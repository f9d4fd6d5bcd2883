package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/gatheria/core"
	"github.com/trezcool/gatheria/core/account"
)

const tokenBytes = 32

var (
	// errors
	ErrNotFound     = core.NewError(core.KindNotFound, "session not found")
	ErrInvalidToken = core.NewError(core.KindInvalidToken, "invalid or revoked token")
	ErrExpiredToken = core.NewError(core.KindExpiredToken, "session expired")
)

// Session is a server-side login session. The bearer token itself is never stored, only its hash.
type Session struct {
	ID        string    `json:"id"`
	TokenHash []byte    `json:"-"`
	AccountID string    `json:"accountId"`
	Remember  bool      `json:"remember"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session, exec ...core.DBExecutor) (Session, error)
		GetSessionByTokenHash(ctx context.Context, hash []byte, exec ...core.DBExecutor) (Session, error)
		DeleteSession(ctx context.Context, id string, exec ...core.DBExecutor) error
		// DeleteSessionsByAccount deletes every session of accountID and returns how many were deleted.
		DeleteSessionsByAccount(ctx context.Context, accountID string, exec ...core.DBExecutor) (int64, error)
		// DeleteExpiredSessions deletes the sessions expired at `now` and returns how many were deleted.
		DeleteExpiredSessions(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error)
	}

	// AccountGetter is the part of the account store sessions need.
	AccountGetter interface {
		GetByID(ctx context.Context, id string) (account.Account, error)
	}

	Service struct {
		repo     Repository
		accounts AccountGetter
		conf     *core.Config
		logger   core.Logger
	}
)

func NewService(repo Repository, accounts AccountGetter, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		conf:     conf,
		logger:   logger,
	}
}

func hashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue opens a session for accountID and returns it along with its bearer token.
func (svc *Service) Issue(ctx context.Context, accountID string, remember bool) (Session, string, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, "", errors.Wrap(err, "generating token")
	}

	ttl := svc.conf.Auth.SessionTTL
	if remember {
		ttl = svc.conf.Auth.RememberMeTTL
	}
	now := core.Now()
	s, err := svc.repo.CreateSession(ctx, Session{
		ID:        uuid.New().String(),
		TokenHash: hashToken(token),
		AccountID: accountID,
		Remember:  remember,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return Session{}, "", errors.Wrap(err, "creating session")
	}
	return s, token, nil
}

// Validate resolves a bearer token to its account and session.
// The account is re-read on every call: the caller's role and state are never taken from the client.
func (svc *Service) Validate(ctx context.Context, token string) (account.Account, Session, error) {
	if token == "" {
		return account.Account{}, Session{}, ErrInvalidToken
	}

	hash := hashToken(token)
	s, err := svc.repo.GetSessionByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return account.Account{}, Session{}, ErrInvalidToken
		}
		return account.Account{}, Session{}, errors.Wrap(err, "finding session")
	}
	if subtle.ConstantTimeCompare(s.TokenHash, hash) != 1 {
		return account.Account{}, Session{}, ErrInvalidToken
	}

	if s.Expired(core.Now()) {
		if err = svc.repo.DeleteSession(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
			svc.logger.Warn("purging expired session", errors.Wrap(err, "deleting session"))
		}
		return account.Account{}, Session{}, ErrExpiredToken
	}

	acc, err := svc.accounts.GetByID(ctx, s.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Account{}, Session{}, ErrInvalidToken
		}
		return account.Account{}, Session{}, errors.Wrap(err, "finding session account")
	}
	return acc, s, nil
}

// Revoke ends the session of token. Revoking an unknown token is a no-op.
func (svc *Service) Revoke(ctx context.Context, token string) error {
	s, err := svc.repo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "finding session")
	}
	if err = svc.repo.DeleteSession(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}

// RevokeAll ends every session of accountID, on every device.
func (svc *Service) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	n, err := svc.repo.DeleteSessionsByAccount(ctx, accountID)
	return n, errors.Wrap(err, "deleting account sessions")
}

// Sweep deletes every expired session.
func (svc *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := svc.repo.DeleteExpiredSessions(ctx, core.Now())
	return n, errors.Wrap(err, "deleting expired sessions")
}

// RunSweeper sweeps expired sessions every interval until ctx is done.
func (svc *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					svc.logger.Error("sweeping sessions", err)
				}
				continue
			}
			if n > 0 {
				svc.logger.Debug(fmt.Sprintf("swept %d expired sessions", n))
			}
		}
	}
}
