package users

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"go.uber.org/zap"
)

// Fetcher loads a user reference from the identity collaborator.
type Fetcher interface {
	User(ctx context.Context, id string) (adventures.User, error)
}

// DirectoryConfig configures a Directory. Fetcher is optional.
type DirectoryConfig struct {
	Fetcher Fetcher
	Logger  *zap.Logger
}

// Directory resolves user ids to display references on the client side. Lookups
// are cached for the directory's lifetime, including fallbacks.
type Directory struct {
	fetcher Fetcher
	logger  *zap.Logger
	cache   sync.Map
}

func NewDirectory(cfg DirectoryConfig) *Directory {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{fetcher: cfg.Fetcher, logger: logger}
}

// Register seeds the directory with a known user, e.g. the session's own user.
func (d *Directory) Register(user adventures.User) {
	if normalize(user.ID) == "" {
		return
	}
	d.cache.Store(normalize(user.ID), user)
}

// Resolve returns the reference for id. Unknown users resolve to their id as the display name.
func (d *Directory) Resolve(ctx context.Context, id string) adventures.User {
	key := normalize(id)
	if cached, ok := d.cache.Load(key); ok {
		if user, ok := cached.(adventures.User); ok {
			return user
		}
	}
	user := adventures.User{ID: key, Username: key}
	if d.fetcher != nil && key != "" {
		fetched, err := d.fetcher.User(ctx, key)
		if err != nil {
			d.logger.Debug("user lookup failed", zap.String("user_id", key), zap.Error(err))
		} else {
			user = fetched
			if normalize(user.Username) == "" {
				user.Username = key
			}
		}
	}
	d.cache.Store(key, user)
	return user
}
