// Package tokencache keeps short-lived vendor access tokens in a persistent
// store and refreshes them only when they are about to expire.
package tokencache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultMargin is how long before expiry a cached token stops being reused.
const DefaultMargin = 5 * time.Minute

type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Key identifies a cached token. ID names the owning record and Scope the
// authority the token was issued for; a token cached under another scope is
// never returned.
type Key struct {
	ID    string
	Scope string
}

func (k Key) String() string {
	return k.ID + "|" + k.Scope
}

type Store interface {
	// Load returns ok=false when no token is cached for key.
	Load(ctx context.Context, key Key) (tok Token, ok bool, err error)
	Save(ctx context.Context, key Key, tok Token) error
}

// Locker serializes refreshes across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

type RefreshFunc func(ctx context.Context) (Token, error)

type Cache struct {
	store  Store
	locker Locker
	logger *zap.Logger
	margin time.Duration
	now    func() time.Time
	group  singleflight.Group
}

type Option func(*Cache)

func WithLocker(l Locker) Option {
	return func(c *Cache) { c.locker = l }
}

func WithMargin(d time.Duration) Option {
	return func(c *Cache) { c.margin = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(logger *zap.Logger, store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		logger: logger.Named("tokencache"),
		margin: DefaultMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) fresh(tok Token) bool {
	return tok.Value != "" && tok.ExpiresAt.After(c.now().Add(c.margin))
}

// GetOrRefresh returns the cached token for key when it is valid for longer
// than the margin. Otherwise it calls refresh once, however many callers are
// waiting, and persists the result.
func (c *Cache) GetOrRefresh(ctx context.Context, key Key, refresh RefreshFunc) (Token, error) {
	tok, ok, err := c.store.Load(ctx, key)
	if err != nil {
		return Token{}, fmt.Errorf("load token: %w", err)
	}
	if ok && c.fresh(tok) {
		return tok, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		return c.refresh(ctx, key, refresh)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

func (c *Cache) refresh(ctx context.Context, key Key, refresh RefreshFunc) (Token, error) {
	if c.locker != nil {
		unlock, err := c.locker.Lock(ctx, "tokencache:"+key.String())
		if err != nil {
			c.logger.Warn("could not obtain refresh lock, refreshing without it",
				zap.String("key", key.ID), zap.Error(err))
		} else {
			defer func() {
				if err := unlock(context.Background()); err != nil {
					c.logger.Warn("failed to release refresh lock", zap.String("key", key.ID), zap.Error(err))
				}
			}()
		}
	}

	// another caller or process may have refreshed in the meantime
	tok, ok, err := c.store.Load(ctx, key)
	if err != nil {
		return Token{}, fmt.Errorf("load token: %w", err)
	}
	if ok && c.fresh(tok) {
		return tok, nil
	}

	tok, err = refresh(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("refresh token: %w", err)
	}
	if tok.Value == "" {
		return Token{}, errors.New("refresh token: empty access token")
	}
	if err := c.store.Save(ctx, key, tok); err != nil {
		return Token{}, fmt.Errorf("save token: %w", err)
	}
	c.logger.Info("refreshed token",
		zap.String("key", key.ID),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return tok, nil
}
