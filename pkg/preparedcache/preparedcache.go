// Package preparedcache persists PreparedMetadataEntry rows so a
// session doesn't have to re-PREPARE every statement on restart. It
// keeps one bucket of JSON-encoded values keyed by a string ID,
// created up front with CreateBucketIfNotExists.
package preparedcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/meridian/pkg/listener"
	bolt "go.etcd.io/bbolt"
)

var bucketPrepared = []byte("prepared_statements")

// Cache persists prepared-statement metadata keyed by query hash.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt-backed cache rooted at
// dataDir/prepared.db.
func Open(dataDir string) (*Cache, error) {
	path := filepath.Join(dataDir, "prepared.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("preparedcache: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPrepared)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparedcache: create bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores or overwrites entry, keyed by its QueryHash.
func (c *Cache) Put(entry listener.PreparedMetadataEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("preparedcache: marshal %s: %w", entry.QueryHash, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrepared).Put([]byte(entry.QueryHash), data)
	})
}

// Get returns the cached entry for queryHash, or ok=false if absent.
func (c *Cache) Get(queryHash string) (entry listener.PreparedMetadataEntry, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPrepared).Get([]byte(queryHash))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &entry)
	})
	return entry, ok, err
}

// All returns every cached entry, for warming a fresh session's
// in-memory view on startup.
func (c *Cache) All() ([]listener.PreparedMetadataEntry, error) {
	var entries []listener.PreparedMetadataEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrepared).ForEach(func(_, data []byte) error {
			var entry listener.PreparedMetadataEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Delete removes the cached entry for queryHash, if present.
func (c *Cache) Delete(queryHash string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrepared).Delete([]byte(queryHash))
	})
}
