package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "github.com/boltdb/bolt"
)

const boltBucket = "agrotech"

// BoltKV is a KV persisted in a single BoltDB file.
type BoltKV struct {
	db *bolt.DB
}

// OpenBoltKV opens (or creates) the database file and its bucket.
func OpenBoltKV(path string) (*BoltKV, error) {
	if path == "" {
		return nil, fmt.Errorf("open bolt kv: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("open bolt kv: create parent dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt kv: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open bolt kv: create bucket: %w", err)
	}
	return &BoltKV{db: db}, nil
}

func (k *BoltKV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := k.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if v != nil {
			// Values are only valid for the life of the transaction.
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt get %q: %w", key, err)
	}
	return out, nil
}

func (k *BoltKV) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return k.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		var current []byte
		if v := b.Get([]byte(key)); v != nil {
			current = append([]byte(nil), v...)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), next)
	})
}

func (k *BoltKV) Close() error {
	return k.db.Close()
}
