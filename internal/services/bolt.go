package services

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BoltDB stores the widget settings that outlive a restart. Chat history is never written to it.
type BoltDB struct {
	db *bolt.DB
}

var (
	settingsBucket = []byte("settings")
	modeKey        = []byte("mode")
)

// NewBoltDB opens, or creates with 0600 permissions, the database at path and makes sure the settings
// bucket exists.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create settings bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Mode returns the last selected mode, or an empty string if none was saved.
func (b BoltDB) Mode(context.Context) (string, error) {
	var mode string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(settingsBucket)
		if bucket == nil {
			return nil
		}
		mode = string(bucket.Get(modeKey))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read mode: %w", err)
	}
	return mode, nil
}

// SetMode saves mode as the last selected mode.
func (b BoltDB) SetMode(_ context.Context, mode string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(settingsBucket)
		if err != nil {
			return err
		}
		return bucket.Put(modeKey, []byte(mode))
	})
	if err != nil {
		return fmt.Errorf("failed to save mode: %w", err)
	}
	return nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}
