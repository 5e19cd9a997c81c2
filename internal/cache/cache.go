// Package cache holds the device's authoritative set of word entries in
// memory and writes every change through to durable blob storage.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/vytor/lexisync/internal/broadcast"
	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
	"github.com/vytor/lexisync/internal/repository"
)

// EntryPrefix is the blob key prefix under which entries are persisted.
const EntryPrefix = "entry:"

// EntryKey returns the blob key of an entry id.
func EntryKey(id string) string {
	return EntryPrefix + id
}

// Cache is the local entry set. Mutations update memory first and then the
// blob store; when the durable write fails the in-memory state is kept and a
// LOCAL_PERSIST_FAILED error is returned.
type Cache struct {
	mu      sync.RWMutex
	repo    repository.BlobRepository
	entries map[string]models.WordEntry
	hub     *broadcast.Hub[[]models.WordEntry]
}

func New(repo repository.BlobRepository) *Cache {
	hub := broadcast.New[[]models.WordEntry]()
	hub.Publish([]models.WordEntry{})
	return &Cache{
		repo:    repo,
		entries: make(map[string]models.WordEntry),
		hub:     hub,
	}
}

// Load replaces the in-memory set with what is persisted. Blobs that fail to
// decode are logged and left out.
func (c *Cache) Load(ctx context.Context) error {
	log := logger.FromContext(ctx).WithPrefix("cache")

	blobs, err := c.repo.List(ctx, EntryPrefix)
	if err != nil {
		log.Error("failed to list persisted entries: %v", err)
		return err
	}

	loaded := make(map[string]models.WordEntry, len(blobs))
	for _, b := range blobs {
		e, err := decodeEntry(b.Key, b.Value)
		if err != nil {
			log.WithError(err).Warn("dropping corrupt entry blob %s", b.Key)
			continue
		}
		loaded[e.ID] = e
	}

	c.mu.Lock()
	c.entries = loaded
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	log.Info("loaded %d entries (%d blobs)", len(loaded), len(blobs))
	c.hub.Publish(snapshot)
	return nil
}

// List returns every entry ordered by creation time, then id.
func (c *Cache) List() []models.WordEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Cache) Get(id string) (models.WordEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Upsert inserts e or replaces the entry with the same id entirely.
func (c *Cache) Upsert(ctx context.Context, e models.WordEntry) error {
	log := logger.FromContext(ctx).WithPrefix("cache").WithField("entry_id", e.ID)
	log.Debug("upserting entry")

	c.mu.Lock()
	c.entries[e.ID] = e
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.hub.Publish(snapshot)

	return c.persist(ctx, e)
}

// Delete removes the entry with id and reports whether it existed.
func (c *Cache) Delete(ctx context.Context, id string) (bool, error) {
	log := logger.FromContext(ctx).WithPrefix("cache").WithField("entry_id", id)

	c.mu.Lock()
	_, ok := c.entries[id]
	delete(c.entries, id)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if !ok {
		log.Debug("delete of unknown entry ignored")
		return false, nil
	}
	c.hub.Publish(snapshot)

	if err := c.repo.Delete(ctx, EntryKey(id)); err != nil {
		log.WithError(err).Error("failed to delete persisted entry")
		return true, errors.NewLocalPersistError(EntryKey(id), err)
	}
	return true, nil
}

// MarkSynced sets the sync flag on every listed entry that still exists.
func (c *Cache) MarkSynced(ctx context.Context, ids ...string) error {
	log := logger.FromContext(ctx).WithPrefix("cache")

	var changed []models.WordEntry
	c.mu.Lock()
	for _, id := range ids {
		e, ok := c.entries[id]
		if !ok || e.SyncFlag {
			continue
		}
		e.SyncFlag = true
		c.entries[id] = e
		changed = append(changed, e)
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}
	log.Debug("marked %d entries synced", len(changed))
	c.hub.Publish(snapshot)

	var firstErr error
	for _, e := range changed {
		if err := c.persist(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Replace swaps the whole entry set for entries, in memory and on disk.
func (c *Cache) Replace(ctx context.Context, entries []models.WordEntry) error {
	log := logger.FromContext(ctx).WithPrefix("cache")

	next := make(map[string]models.WordEntry, len(entries))
	blobs := make(map[string][]byte, len(entries))
	var encodeErr error
	for _, e := range entries {
		next[e.ID] = e
		data, err := json.Marshal(e)
		if err != nil {
			encodeErr = err
			continue
		}
		blobs[EntryKey(e.ID)] = data
	}

	c.mu.Lock()
	c.entries = next
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.hub.Publish(snapshot)
	log.Debug("replaced entry set with %d entries", len(next))

	if encodeErr != nil {
		log.WithError(encodeErr).Error("failed to encode entry set")
		return errors.NewLocalPersistError(EntryPrefix+"*", encodeErr)
	}
	if err := c.repo.ReplacePrefix(ctx, EntryPrefix, blobs); err != nil {
		log.WithError(err).Error("failed to persist entry set")
		return errors.NewLocalPersistError(EntryPrefix+"*", err)
	}
	return nil
}

// Subscribe streams the entry set after every change, starting with the
// current one. Only the latest set is retained for a slow reader.
func (c *Cache) Subscribe() (<-chan []models.WordEntry, func()) {
	return c.hub.Subscribe()
}

// Close ends every subscription.
func (c *Cache) Close() {
	c.hub.Close()
}

func (c *Cache) persist(ctx context.Context, e models.WordEntry) error {
	key := EntryKey(e.ID)
	data, err := json.Marshal(e)
	if err == nil {
		err = c.repo.Put(ctx, key, data)
	}
	if err != nil {
		logger.FromContext(ctx).WithPrefix("cache").WithError(err).Error("failed to persist %s", key)
		return errors.NewLocalPersistError(key, err)
	}
	return nil
}

func (c *Cache) snapshotLocked() []models.WordEntry {
	out := make([]models.WordEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	models.SortEntries(out)
	return out
}

func decodeEntry(key string, data []byte) (models.WordEntry, error) {
	var e models.WordEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return models.WordEntry{}, errors.NewLocalCorruptDecodeError(key, err)
	}
	if e.ID == "" || strings.TrimPrefix(key, EntryPrefix) != e.ID {
		return models.WordEntry{}, errors.NewLocalCorruptDecodeError(key, nil)
	}
	return e, nil
}
