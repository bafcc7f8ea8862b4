package entity

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/webcask/webcask/pkg/xerrors"
)

// KV is the minimal client surface required of a remote or host key-value
// service. Implementations map their protocol's miss result to a not-found
// error kind; the store logic above them is protocol-agnostic.
type KV interface {
	Contains(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// KVDeleter is the optional deletion capability of a KV client. Clients
// whose protocol lacks delete simply do not implement it; KVStore.Purge then
// fails with a not-supported error instead of succeeding silently.
type KVDeleter interface {
	Delete(ctx context.Context, key string) error
}

// KVStore adapts a key-value client to the entity store contract, keying
// raw blob bytes by digest.
type KVStore struct {
	kv  KV
	ttl time.Duration
}

// NewKVStore wraps kv. Entries written with a non-zero ttl are expired by
// the service; callers that need durable entries pass 0.
func NewKVStore(kv KV, ttl time.Duration) (*KVStore, error) {
	if kv == nil {
		return nil, xerrors.E(xerrors.KindInvalid, "entity.NewKVStore", "kv")
	}
	return &KVStore{kv: kv, ttl: ttl}, nil
}

func (s *KVStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	const op = "entity.KVStore.Write"
	h := NewHasher()
	var buf bytes.Buffer
	n, err := io.Copy(io.MultiWriter(&buf, h), body)
	if err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, "", err)
	}
	digest := hexSum(h)
	ok, err := s.kv.Contains(ctx, digest)
	if err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	if ok {
		return digest, n, nil
	}
	if err := s.kv.Put(ctx, digest, buf.Bytes(), s.ttl); err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	return digest, n, nil
}

func (s *KVStore) Read(ctx context.Context, digest string) ([]byte, error) {
	const op = "entity.KVStore.Read"
	if !ValidDigest(digest) {
		return nil, xerrors.E(xerrors.KindNotFound, op, digest)
	}
	data, err := s.kv.Get(ctx, digest)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindOf(err), op, digest, err)
	}
	return data, nil
}

func (s *KVStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	data, err := s.Read(ctx, digest)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *KVStore) Exists(ctx context.Context, digest string) (bool, error) {
	if !ValidDigest(digest) {
		return false, nil
	}
	ok, err := s.kv.Contains(ctx, digest)
	if err != nil {
		return false, xerrors.Wrap(xerrors.KindInternal, "entity.KVStore.Exists", digest, err)
	}
	return ok, nil
}

func (s *KVStore) Purge(ctx context.Context, digest string) error {
	const op = "entity.KVStore.Purge"
	del, ok := s.kv.(KVDeleter)
	if !ok {
		return xerrors.E(xerrors.KindNotSupported, op, digest)
	}
	if !ValidDigest(digest) {
		return nil
	}
	if err := del.Delete(ctx, digest); err != nil && !xerrors.IsNotFound(err) {
		return xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	return nil
}

// Close releases the underlying client connection when it holds one.
func (s *KVStore) Close() error {
	if c, ok := s.kv.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
