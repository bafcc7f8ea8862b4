package entity

import (
	"net/url"
	"path"

	"github.com/webcask/webcask/pkg/xerrors"
)

// AccelScheme prefixes accelerated-redirect store descriptors.
const AccelScheme = "accelredirect"

// DefaultProxyRoot is the proxy-visible root used when a descriptor carries
// no fragment.
const DefaultProxyRoot = "/cache"

// AccelStore is a DiskStore whose entries are served by a front-end reverse
// proxy: instead of streaming bytes through the application, the response
// envelope codec emits the proxy-visible shard path in a redirect header and
// the proxy resolves it against its own root.
type AccelStore struct {
	*DiskStore
	proxyRoot string
}

// AccelConfig is the parsed form of an accelerated-redirect descriptor.
type AccelConfig struct {
	Root      string // on-disk root
	ProxyRoot string // root exposed to the front-end server
}

// ParseAccelDescriptor parses `accelredirect:<root>[#<proxy-root>]`. The
// fragment defaults to DefaultProxyRoot.
func ParseAccelDescriptor(descriptor string) (AccelConfig, error) {
	const op = "entity.ParseAccelDescriptor"
	u, err := url.Parse(descriptor)
	if err != nil {
		return AccelConfig{}, xerrors.Wrap(xerrors.KindInvalid, op, descriptor, err)
	}
	if u.Scheme != AccelScheme {
		return AccelConfig{}, xerrors.E(xerrors.KindInvalid, op, descriptor)
	}
	root := u.Opaque
	if root == "" {
		root = u.Path
	}
	if root == "" {
		return AccelConfig{}, xerrors.E(xerrors.KindInvalid, op, descriptor)
	}
	proxyRoot := u.Fragment
	if proxyRoot == "" {
		proxyRoot = DefaultProxyRoot
	}
	return AccelConfig{Root: root, ProxyRoot: proxyRoot}, nil
}

// NewAccelStore builds a store from an accelerated-redirect descriptor,
// parsing it once at construction time.
func NewAccelStore(descriptor string) (*AccelStore, error) {
	cfg, err := ParseAccelDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	disk, err := NewDiskStore(cfg.Root)
	if err != nil {
		return nil, err
	}
	return &AccelStore{DiskStore: disk, proxyRoot: cfg.ProxyRoot}, nil
}

// ProxyRoot returns the root the front-end server resolves redirect paths
// against.
func (s *AccelStore) ProxyRoot() string { return s.proxyRoot }

// RedirectPath implements Redirector. The result substitutes the proxy root
// for the on-disk root in the shard path for digest. A malformed digest
// yields the empty string.
func (s *AccelStore) RedirectPath(digest string) string {
	if !ValidDigest(digest) {
		return ""
	}
	return path.Join(s.proxyRoot, digest[:2], digest[2:])
}
