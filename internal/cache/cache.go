package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Cache keeps the id of the newest message per room with a TTL. It is a
// best-effort read accelerator; callers are expected to tolerate every
// failure mode it has.
type Cache struct {
	db *badger.DB
}

// Open creates the cache at dir. An empty dir opens an in-memory instance,
// which is also what the tests use.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

func latestKey(roomID string) []byte {
	return []byte(fmt.Sprintf("messages:%s:latest", roomID))
}

// SetLatest records messageID as the newest message of the room for ttl.
func (c *Cache) SetLatest(ctx context.Context, roomID, messageID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(latestKey(roomID), []byte(messageID)).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Latest returns the newest message id of the room, reporting a miss for an
// unknown or expired entry.
func (c *Cache) Latest(ctx context.Context, roomID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var id string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(roomID))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id = string(val)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *Cache) Close() error { return c.db.Close() }
