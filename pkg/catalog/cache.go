// Package catalog pkg/catalog/cache.go provides an in-memory snapshot of the
// register catalog, refreshed from the store on startup and on demand.
package catalog

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cgplatform/dbwriter/pkg/db"
	"github.com/cgplatform/dbwriter/pkg/models"
)

// Cache caches register_catalog rows. Lookups never touch the store;
// Refresh replaces the whole snapshot atomically.
type Cache struct {
	store db.Store
	log   *logrus.Entry

	mu        sync.RWMutex
	entries   map[models.CatalogKey]models.CatalogEntry
	refreshMu sync.Mutex
}

// New returns an empty cache. Call Refresh before serving lookups.
func New(store db.Store, log *logrus.Entry) *Cache {
	return &Cache{
		store:   store,
		log:     log,
		entries: make(map[models.CatalogKey]models.CatalogEntry),
	}
}

// Refresh loads the catalog from the store and swaps it in. Concurrent
// refreshes are serialized; lookups keep seeing the old snapshot until the
// load succeeds, so a failed refresh never empties the cache.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	entries, err := c.store.LoadCatalog(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	c.log.WithField("entries", len(entries)).Info("Register catalog refreshed")

	return nil
}

// Lookup returns the entry for (equipType, addr) and whether it exists.
func (c *Cache) Lookup(equipType string, addr int) (models.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[models.CatalogKey{EquipType: equipType, Addr: addr}]

	return entry, ok
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
