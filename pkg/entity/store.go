// Package entity implements the content-addressable entity store of an HTTP
// caching layer. Response bodies are persisted under a deterministic digest
// of their content, so identical bodies cached under different URLs or
// headers occupy a single entry.
package entity

import (
	"context"
	"io"

	"github.com/webcask/webcask/pkg/xerrors"
)

// Store is the capability set implemented by every backend.
type Store interface {
	// Write consumes body once, computing the digest while streaming, and
	// persists the blob under that digest. Writing content that is already
	// present is a no-op yielding the same digest.
	Write(ctx context.Context, body io.Reader) (digest string, size int64, err error)

	// Read returns the full content for digest. An unknown or malformed
	// digest yields a not-found error, never a medium failure.
	Read(ctx context.Context, digest string) ([]byte, error)

	// Open returns a lazy, single-pass stream over the content. Disk-backed
	// stores return a handle whose Name is the addressable on-disk path.
	Open(ctx context.Context, digest string) (io.ReadCloser, error)

	// Exists reports whether digest is stored without materializing content.
	Exists(ctx context.Context, digest string) (bool, error)

	// Purge removes the entry if present. Purging an absent entry is not an
	// error; backends without a delete primitive fail with a not-supported
	// error rather than succeeding silently.
	Purge(ctx context.Context, digest string) error
}

// Redirector is implemented by stores whose entries a front-end reverse
// proxy can serve directly from disk. RedirectPath returns the proxy-visible
// path for digest.
type Redirector interface {
	RedirectPath(digest string) string
}

// IsNotFound reports whether err signals an absent entry.
func IsNotFound(err error) bool { return xerrors.IsNotFound(err) }

// IsNotSupported reports whether err signals a backend capability gap.
func IsNotSupported(err error) bool { return xerrors.IsNotSupported(err) }
