// Package friends keeps a locally-cached directory of the local user's
// friends. The roster uses it to resolve display names for remote
// participants ahead of whatever name the roster broadcast carried.
package friends

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tankmates/tankmates/internal/rest"
)

// Store persists the directory between sessions.
type Store interface {
	Replace(ctx context.Context, ownerID string, friends []rest.Friend) error
	List(ctx context.Context, ownerID string) ([]rest.Friend, error)
}

type Directory struct {
	ownerID string
	rest    *rest.Client
	store   Store
	log     *zap.Logger

	mu    sync.RWMutex
	names map[string]string
}

func NewDirectory(ownerID string, restClient *rest.Client, store Store, log *zap.Logger) *Directory {
	return &Directory{
		ownerID: ownerID,
		rest:    restClient,
		store:   store,
		log:     log.Named("friends"),
		names:   make(map[string]string),
	}
}

// Load primes the directory from the local store, so names resolve even
// before the collaborator has been reached.
func (d *Directory) Load(ctx context.Context) error {
	cached, err := d.store.List(ctx, d.ownerID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	for _, f := range cached {
		d.names[f.ID] = f.Nickname
	}
	d.mu.Unlock()
	return nil
}

// Refresh fetches the friend list from the collaborator and rewrites the
// local cache. A fetch failure leaves the cached copy in place.
func (d *Directory) Refresh(ctx context.Context) error {
	fetched, err := d.rest.Friends(ctx, d.ownerID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.names = make(map[string]string, len(fetched))
	for _, f := range fetched {
		d.names[f.ID] = f.Nickname
	}
	d.mu.Unlock()
	if err := d.store.Replace(ctx, d.ownerID, fetched); err != nil {
		d.log.Warn("friend cache write failed", zap.Error(err))
	}
	return nil
}

// Resolve returns the cached nickname for a user id.
func (d *Directory) Resolve(userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[userID]
	return name, ok && name != ""
}
