package entity

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/webcask/webcask/pkg/xerrors"
)

// HeapStore keeps entries in an in-process map. It is safe for use by
// parallel request handlers sharing one instance.
type HeapStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewHeapStore returns a store over seed, keyed by digest. A nil seed yields
// a private empty map; passing a map makes the backing storage an explicit
// dependency rather than hidden process-wide state.
func NewHeapStore(seed map[string][]byte) *HeapStore {
	if seed == nil {
		seed = make(map[string][]byte)
	}
	return &HeapStore{entries: seed}
}

func (s *HeapStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	h := NewHasher()
	var buf bytes.Buffer
	n, err := io.Copy(io.MultiWriter(&buf, h), body)
	if err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, "entity.HeapStore.Write", "", err)
	}
	digest := hexSum(h)
	s.mu.Lock()
	if _, ok := s.entries[digest]; !ok {
		s.entries[digest] = buf.Bytes()
	}
	s.mu.Unlock()
	return digest, n, nil
}

func (s *HeapStore) Read(ctx context.Context, digest string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.entries[digest]
	s.mu.RUnlock()
	if !ok {
		return nil, xerrors.E(xerrors.KindNotFound, "entity.HeapStore.Read", digest)
	}
	return append([]byte(nil), data...), nil
}

func (s *HeapStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	data, err := s.Read(ctx, digest)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindOf(err), "entity.HeapStore.Open", digest, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *HeapStore) Exists(ctx context.Context, digest string) (bool, error) {
	s.mu.RLock()
	_, ok := s.entries[digest]
	s.mu.RUnlock()
	return ok, nil
}

func (s *HeapStore) Purge(ctx context.Context, digest string) error {
	s.mu.Lock()
	delete(s.entries, digest)
	s.mu.Unlock()
	return nil
}
