package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

var (
	errNoBucket = errors.New("Bucket not found")

	responsesBucket = []byte("responses")
)

// Bolt is a Cache stored in a boltdb file.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens or creates the boltdb database at dbFile.
func NewBolt(dbFile string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for boltdb file %s: %w", dbFile, err)
	}
	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb file %s: %w", dbFile, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(responsesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// Get returns the entry stored under key. Expired entries are reported as missing.
func (b *Bolt) Get(ctx context.Context, key string) (*Entry, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(responsesBucket)
		if bucket == nil {
			return errNoBucket
		}

		v := bucket.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction.
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if entry.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Put stores entry under key, replacing any previous entry.
func (b *Bolt) Put(ctx context.Context, key string, entry *Entry) error {
	data, err := Marshal(entry)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(responsesBucket)
		if bucket == nil {
			return errNoBucket
		}
		return bucket.Put([]byte(key), data)
	})
}

// Close closes the underlying boltdb.
func (b *Bolt) Close() error {
	return b.db.Close()
}
