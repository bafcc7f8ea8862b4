package entity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/webcask/webcask/pkg/cache"
	"github.com/webcask/webcask/pkg/xerrors"
)

// ObjectStore persists blobs in S3-compatible object storage, one object per
// digest. Reads are fronted by an in-process LRU so hot entries skip the
// network round-trip.
type ObjectStore struct {
	client  *http.Client
	baseURL string
	signer  requestSigner
	cache   *cache.Cache
}

// ObjectConfig configures an ObjectStore. Empty credentials yield unsigned
// requests, which suits local fake servers.
type ObjectConfig struct {
	Endpoint     string
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Client       *http.Client
	CacheEntries int
	CacheTTL     time.Duration
}

// requestSigner signs outgoing requests for the storage provider.
type requestSigner interface {
	Sign(req *http.Request, payloadHash string) error
}

type anonymousSigner struct{}

func (anonymousSigner) Sign(*http.Request, string) error { return nil }

// NewObjectStore validates cfg and builds the store.
func NewObjectStore(cfg ObjectConfig) (*ObjectStore, error) {
	const op = "entity.NewObjectStore"
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, xerrors.E(xerrors.KindInvalid, op, "endpoint and bucket required")
	}
	bucket := strings.Trim(cfg.Bucket, "/")
	if bucket == "" {
		return nil, xerrors.E(xerrors.KindInvalid, op, cfg.Bucket)
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	var signer requestSigner = anonymousSigner{}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		if cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Region == "" {
			return nil, xerrors.E(xerrors.KindInvalid, op, "signed requests need access key, secret key, and region")
		}
		signer = &sigV4Signer{
			accessKey: cfg.AccessKey,
			secretKey: cfg.SecretKey,
			region:    cfg.Region,
			token:     cfg.SessionToken,
			now:       time.Now,
		}
	}
	entries := cfg.CacheEntries
	if entries == 0 {
		entries = 512
	}
	var readCache *cache.Cache
	if entries > 0 {
		readCache = cache.New(entries, cfg.CacheTTL)
	}
	return &ObjectStore{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.Endpoint, "/") + "/" + bucket,
		signer:  signer,
		cache:   readCache,
	}, nil
}

func (s *ObjectStore) Write(ctx context.Context, body io.Reader) (string, int64, error) {
	const op = "entity.ObjectStore.Write"
	h := NewHasher()
	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&buf, h), body); err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, "", err)
	}
	digest := hexSum(h)
	size := int64(buf.Len())
	exists, err := s.head(ctx, digest)
	if err != nil {
		return "", 0, err
	}
	if exists {
		return digest, size, nil
	}
	payload := buf.Bytes()
	payloadSum := sha256.Sum256(payload)
	payloadHash := hex.EncodeToString(payloadSum[:])
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(digest), bytes.NewReader(payload))
	if err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Length", strconv.Itoa(len(payload)))
	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("Host", req.URL.Host)
	if err := s.signer.Sign(req, payloadHash); err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", 0, xerrors.Wrap(xerrors.KindInternal, op, digest, httpStatusError("put", resp))
	}
	return digest, size, nil
}

func (s *ObjectStore) Read(ctx context.Context, digest string) ([]byte, error) {
	const op = "entity.ObjectStore.Read"
	if !ValidDigest(digest) {
		return nil, xerrors.E(xerrors.KindNotFound, op, digest)
	}
	if data, ok := s.cacheGet(digest); ok {
		return data, nil
	}
	req, err := s.newRequest(ctx, http.MethodGet, digest)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, xerrors.E(xerrors.KindNotFound, op, digest)
	}
	if resp.StatusCode >= 300 {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, digest, httpStatusError("get", resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	s.cachePut(digest, data)
	return data, nil
}

func (s *ObjectStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	data, err := s.Read(ctx, digest)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *ObjectStore) Exists(ctx context.Context, digest string) (bool, error) {
	if !ValidDigest(digest) {
		return false, nil
	}
	return s.head(ctx, digest)
}

func (s *ObjectStore) Purge(ctx context.Context, digest string) error {
	const op = "entity.ObjectStore.Purge"
	if !ValidDigest(digest) {
		return nil
	}
	if s.cache != nil {
		s.cache.Delete(digest)
	}
	req, err := s.newRequest(ctx, http.MethodDelete, digest)
	if err != nil {
		return xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return xerrors.Wrap(xerrors.KindInternal, op, digest, httpStatusError("delete", resp))
	}
	return nil
}

// Close stops the read cache's expiry goroutine.
func (s *ObjectStore) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

func (s *ObjectStore) head(ctx context.Context, digest string) (bool, error) {
	const op = "entity.ObjectStore.head"
	req, err := s.newRequest(ctx, http.MethodHead, digest)
	if err != nil {
		return false, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, xerrors.Wrap(xerrors.KindInternal, op, digest, err)
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, xerrors.Wrap(xerrors.KindInternal, op, digest, fmt.Errorf("head %s", resp.Status))
	}
}

// newRequest builds a signed body-less request for digest.
func (s *ObjectStore) newRequest(ctx context.Context, method, digest string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.objectURL(digest), nil)
	if err != nil {
		return nil, err
	}
	payloadHash := emptyPayloadHash()
	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("Host", req.URL.Host)
	if err := s.signer.Sign(req, payloadHash); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *ObjectStore) objectURL(digest string) string {
	return s.baseURL + "/" + digest
}

func (s *ObjectStore) cacheGet(digest string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(digest)
}

func (s *ObjectStore) cachePut(digest string, data []byte) {
	if s.cache == nil || len(data) == 0 {
		return
	}
	s.cache.Set(digest, data)
}

func httpStatusError(verb string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("object %s %s: %s", verb, resp.Status, string(body))
}

func emptyPayloadHash() string {
	sum := sha256.Sum256(nil)
	return hex.EncodeToString(sum[:])
}
