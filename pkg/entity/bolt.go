package entity

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/webcask/webcask/pkg/xerrors"
)

var boltBucket = []byte("entities")

// BoltKV binds the KV surface to an embedded bbolt database, the
// host-provided key-value service for single-node deployments. TTLs are
// ignored: the embedded store has no expiry and entries live until purged.
type BoltKV struct {
	db *bolt.DB
}

// NewBoltKV opens (or creates) the database at path.
func NewBoltKV(path string) (*BoltKV, error) {
	const op = "entity.NewBoltKV"
	if path == "" {
		return nil, xerrors.E(xerrors.KindInvalid, op, "path")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.KindInternal, op, path, err)
	}
	return &BoltKV{db: db}, nil
}

func (b *BoltKV) Contains(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(boltBucket).Get([]byte(key)) != nil
		return nil
	})
	return ok, err
}

func (b *BoltKV) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, xerrors.E(xerrors.KindNotFound, "entity.BoltKV.Get", key)
	}
	return data, nil
}

func (b *BoltKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), value)
	})
}

// Delete implements KVDeleter.
func (b *BoltKV) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
}

// Close closes the database file.
func (b *BoltKV) Close() error { return b.db.Close() }
