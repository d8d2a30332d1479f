// Package identity resolves the current actor during session restore.
// Bootstrapping races the authoritative session check against a fixed
// timeout: if the check is slow, a locally decoded (unverified) token
// yields a provisional identity so the client is not blocked, and the
// real answer reconciles it as soon as it arrives.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/cygirat-cmd/kiki-server/cache"
	"github.com/cygirat-cmd/kiki-server/middleware"
	"github.com/cygirat-cmd/kiki-server/session"
	"go.uber.org/zap"
)

// ErrInvalidSession is returned when a presented token fails the
// authoritative check.
var ErrInvalidSession = errors.New("identity: invalid session")

// Checker is the authoritative identity service: it validates a token
// signature and confirms the session is still live.
type Checker interface {
	Check(ctx context.Context, token string) (int64, error)
}

// CacheChecker validates JWTs and confirms sessions against the
// session cache, the same check the auth middleware performs.
type CacheChecker struct {
	cache  cache.Cache
	secret string
}

// NewCacheChecker creates a CacheChecker.
func NewCacheChecker(c cache.Cache, secret string) *CacheChecker {
	return &CacheChecker{cache: c, secret: secret}
}

// Check verifies the token and the session cache entry.
func (cc *CacheChecker) Check(ctx context.Context, token string) (int64, error) {
	claims, err := middleware.ParseToken(token, cc.secret)
	if err != nil {
		return 0, ErrInvalidSession
	}
	exists, err := cc.cache.Exists(ctx, "session:"+token)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrInvalidSession
	}
	return claims.AccountID, nil
}

type outcome struct {
	accountID int64
	err       error
}

// Provider bootstraps the current identity for a device.
type Provider struct {
	checker Checker
	timeout time.Duration
	logger  *zap.Logger

	// OnConfirmed is invoked when a slow authoritative check finally
	// resolves an identity that was handed out unconfirmed. Nil is
	// allowed.
	OnConfirmed func(id session.Identity)
	// OnRejected is invoked when the late check rejects a token that
	// was handed out unconfirmed. Nil is allowed.
	OnRejected func(token string)
}

// NewProvider creates a Provider with the given bootstrap timeout.
func NewProvider(checker Checker, timeout time.Duration, logger *zap.Logger) *Provider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Provider{checker: checker, timeout: timeout, logger: logger}
}

// Bootstrap resolves the identity for a session-restore. An empty
// token yields a guest identity bound to the device's guest ID. A
// token is checked authoritatively; if the check does not return
// within the timeout, the token payload is decoded locally and the
// resulting identity is marked Unconfirmed. Unconfirmed identities are
// read-only until the late check confirms them.
func (p *Provider) Bootstrap(ctx context.Context, token, guestID string) (session.Identity, error) {
	if token == "" {
		return session.Guest(guestID), nil
	}

	ch := make(chan outcome, 1)
	go func() {
		accountID, err := p.checker.Check(ctx, token)
		ch <- outcome{accountID: accountID, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			return session.Identity{}, out.err
		}
		return session.Account(out.accountID), nil
	case <-timer.C:
		fallback, err := p.decodeFallback(token)
		if err != nil {
			// Cannot even decode locally; wait is the only option, so
			// report the session as invalid.
			return session.Identity{}, ErrInvalidSession
		}
		p.logger.Warn("identity check slow, using unconfirmed fallback",
			zap.Int64("account_id", fallback.AccountID))
		go p.reconcile(token, ch)
		return fallback, nil
	}
}

// decodeFallback reconstructs an identity from the token payload
// without signature verification. Never valid for writes.
func (p *Provider) decodeFallback(token string) (session.Identity, error) {
	claims, err := middleware.DecodeToken(token)
	if err != nil {
		return session.Identity{}, err
	}
	if claims.AccountID == 0 {
		return session.Identity{}, ErrInvalidSession
	}
	id := session.Account(claims.AccountID)
	id.Unconfirmed = true
	return id, nil
}

// reconcile waits for the late authoritative answer and notifies the
// configured callbacks.
func (p *Provider) reconcile(token string, ch <-chan outcome) {
	out := <-ch
	if out.err != nil {
		p.logger.Warn("unconfirmed session rejected by late check", zap.Error(out.err))
		if p.OnRejected != nil {
			p.OnRejected(token)
		}
		return
	}
	if p.OnConfirmed != nil {
		p.OnConfirmed(session.Account(out.accountID))
	}
}
