package entity

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/webcask/webcask/pkg/xerrors"
)

// DiskStore persists blobs on a filesystem, sharded into two-level
// subdirectories keyed by digest prefix so that no directory holds more than
// 16^2 children regardless of corpus size.
type DiskStore struct {
	root string
	fs   billy.Filesystem
	seq  atomic.Uint64
}

// NewDiskStore returns a store rooted at root on the local filesystem,
// creating the directory if absent.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, xerrors.E(xerrors.KindInvalid, "entity.NewDiskStore", "root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "entity.NewDiskStore", root, err)
	}
	return &DiskStore{root: root, fs: osfs.New(root)}, nil
}

// NewDiskStoreFS returns a store over an arbitrary filesystem, already rooted
// at root. Tests use this with an in-memory filesystem.
func NewDiskStoreFS(fsys billy.Filesystem, root string) (*DiskStore, error) {
	if fsys == nil {
		return nil, xerrors.E(xerrors.KindInvalid, "entity.NewDiskStoreFS", "fs")
	}
	return &DiskStore{root: root, fs: fsys}, nil
}

// Root returns the on-disk root the store was constructed with.
func (s *DiskStore) Root() string { return s.root }

// Path returns the addressable on-disk location for digest, whether or not
// an entry exists there. Callers may elect to serve the file directly, e.g.
// through an accelerated-redirect header or a static file responder. A
// malformed digest yields the empty string.
func (s *DiskStore) Path(digest string) string {
	if !ValidDigest(digest) {
		return ""
	}
	return filepath.Join(s.root, digest[:2], digest[2:])
}

// shardPath is the entry location relative to the store filesystem.
func shardPath(digest string) string {
	return path.Join(digest[:2], digest[2:])
}

func (s *DiskStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	const op = "entity.DiskStore.Write"
	h := NewHasher()
	tmpName := fmt.Sprintf("incoming-%d-%d-%d", os.Getpid(), time.Now().UnixNano(), s.seq.Add(1))
	tmp, err := s.fs.Create(tmpName)
	if err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, tmpName, err)
	}
	n, err := io.Copy(tmp, io.TeeReader(body, h))
	if err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, tmpName, err)
	}
	digest := hexSum(h)
	dest := shardPath(digest)
	if _, err := s.fs.Stat(dest); err == nil {
		// Already stored; content-addressing makes this a no-op.
		s.fs.Remove(tmpName)
		return digest, n, nil
	} else if !os.IsNotExist(err) {
		s.fs.Remove(tmpName)
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, dest, err)
	}
	// MkdirAll tolerates a concurrent writer having created the shard dir.
	if err := s.fs.MkdirAll(digest[:2], 0o755); err != nil {
		s.fs.Remove(tmpName)
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, digest[:2], err)
	}
	if err := s.fs.Rename(tmpName, dest); err != nil {
		s.fs.Remove(tmpName)
		if _, statErr := s.fs.Stat(dest); statErr == nil {
			// A concurrent writer of the same content published first.
			return digest, n, nil
		}
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, dest, err)
	}
	return digest, n, nil
}

func (s *DiskStore) Read(ctx context.Context, digest string) ([]byte, error) {
	const op = "entity.DiskStore.Read"
	rc, err := s.Open(ctx, digest)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindOf(err), op, digest, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	return data, nil
}

func (s *DiskStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	const op = "entity.DiskStore.Open"
	if !ValidDigest(digest) {
		return nil, xerrors.E(xerrors.KindNotFound, op, digest)
	}
	f, err := s.fs.Open(shardPath(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.E(xerrors.KindNotFound, op, digest)
		}
		return nil, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	return f, nil
}

func (s *DiskStore) Exists(ctx context.Context, digest string) (bool, error) {
	if !ValidDigest(digest) {
		return false, nil
	}
	_, err := s.fs.Stat(shardPath(digest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, xerrors.Wrap(xerrors.KindInternal, "entity.DiskStore.Exists", digest, err)
}

func (s *DiskStore) Purge(ctx context.Context, digest string) error {
	if !ValidDigest(digest) {
		return nil
	}
	err := s.fs.Remove(shardPath(digest))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return xerrors.Wrap(xerrors.KindInternal, "entity.DiskStore.Purge", digest, err)
}
