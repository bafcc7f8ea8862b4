package entity

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/webcask/webcask/pkg/xerrors"
)

// Options carries the out-of-band settings a descriptor cannot express,
// mainly credentials for object storage and entry TTLs for key-value
// services.
type Options struct {
	// TTL applies to entries written through key-value backends; zero means
	// no expiry.
	TTL time.Duration

	// Object storage credentials. Empty credentials produce unsigned
	// requests.
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	// Insecure selects plain HTTP for s3 endpoints.
	Insecure bool
	Client   *http.Client

	// Read-through cache tuning for the object backend. Zero CacheEntries
	// selects the default size.
	CacheEntries int
	CacheTTL     time.Duration
}

// Resolve constructs a backend from a storage descriptor:
//
//	heap:
//	file:<root>
//	accelredirect:<root>[#<proxy-root>]
//	bolt:<path>
//	memcached://host[,host...]
//	redis://[:password@]host:port[/db]
//	s3://<endpoint-host>/<bucket>
//
// A descriptor with no scheme is treated as a disk root.
func Resolve(descriptor string, opts Options) (Store, error) {
	const op = "entity.Resolve"
	scheme, rest, found := strings.Cut(descriptor, ":")
	if !found {
		return NewDiskStore(descriptor)
	}
	switch scheme {
	case "heap":
		return NewHeapStore(nil), nil
	case "file":
		return NewDiskStore(strings.TrimPrefix(rest, "//"))
	case AccelScheme:
		return NewAccelStore(descriptor)
	case "bolt":
		kv, err := NewBoltKV(strings.TrimPrefix(rest, "//"))
		if err != nil {
			return nil, err
		}
		return NewKVStore(kv, 0)
	case "memcached", "memcache":
		u, err := url.Parse(descriptor)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInvalid, op, descriptor, err)
		}
		host := u.Host
		if host == "" {
			host = u.Opaque
		}
		kv, err := NewMemcacheKV(strings.Split(host, ",")...)
		if err != nil {
			return nil, err
		}
		return NewKVStore(kv, opts.TTL)
	case "redis", "rediss":
		kv, err := NewRedisKVFromURL(descriptor)
		if err != nil {
			return nil, err
		}
		return NewKVStore(kv, opts.TTL)
	case "s3":
		u, err := url.Parse(descriptor)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInvalid, op, descriptor, err)
		}
		endpoint := "https://" + u.Host
		if opts.Insecure {
			endpoint = "http://" + u.Host
		}
		return NewObjectStore(ObjectConfig{
			Endpoint:     endpoint,
			Bucket:       strings.Trim(u.Path, "/"),
			Region:       opts.Region,
			AccessKey:    opts.AccessKey,
			SecretKey:    opts.SecretKey,
			SessionToken: opts.SessionToken,
			Client:       opts.Client,
			CacheEntries: opts.CacheEntries,
			CacheTTL:     opts.CacheTTL,
		})
	default:
		return nil, xerrors.E(xerrors.KindInvalid, op, descriptor)
	}
}
