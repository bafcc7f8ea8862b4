package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/webcask/webcask/pkg/entity"
	"github.com/webcask/webcask/pkg/envelope"
	"github.com/webcask/webcask/pkg/xerrors"
)

const (
	helloBody   = "hello world"
	helloDigest = "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T, store entity.Store, opts Options) http.Handler {
	t.Helper()
	srv, err := New(store, testLogger(), opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv.Handler()
}

func TestEntityLifecycle(t *testing.T) {
	h := newTestServer(t, entity.NewHeapStore(nil), Options{})

	// PUT stores the body and answers the digest.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/entities", strings.NewReader(helloBody)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("put status %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(envelope.HeaderContentDigest); got != helloDigest {
		t.Fatalf("digest header %s", got)
	}
	var created struct {
		Digest string `json:"digest"`
		Size   int64  `json:"size"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Digest != helloDigest || created.Size != int64(len(helloBody)) {
		t.Fatalf("created %+v", created)
	}

	// HEAD sees it.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/entities/"+helloDigest, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("head status %d", rec.Code)
	}

	// GET streams the stored bytes with the envelope headers.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities/"+helloDigest, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	if rec.Body.String() != helloBody {
		t.Fatalf("get body %q", rec.Body.String())
	}
	if got := rec.Header().Get(envelope.HeaderContentDigest); got != helloDigest {
		t.Fatalf("get digest header %s", got)
	}

	// DELETE purges; the entity is gone afterwards.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/entities/"+helloDigest, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities/"+helloDigest, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/entities/"+helloDigest, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("head after delete status %d", rec.Code)
	}
}

func TestGetUnknownDigest(t *testing.T) {
	h := newTestServer(t, entity.NewHeapStore(nil), Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities/"+helloDigest, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestAccelRedirectGet(t *testing.T) {
	store, err := entity.NewAccelStore("accelredirect:" + t.TempDir() + "#/internal")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	h := newTestServer(t, store, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/entities", strings.NewReader(helloBody)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("put status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities/"+helloDigest, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	want := "/internal/" + helloDigest[:2] + "/" + helloDigest[2:]
	if got := rec.Header().Get(envelope.HeaderAccelRedirect); got != want {
		t.Fatalf("%s: got %s want %s", envelope.HeaderAccelRedirect, got, want)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %d bytes", rec.Body.Len())
	}
}

// undeletableKV satisfies the client surface but not the optional delete
// capability, so purges through it answer 501.
type undeletableKV struct {
	entries map[string][]byte
}

func (f *undeletableKV) Contains(ctx context.Context, key string) (bool, error) {
	_, ok := f.entries[key]
	return ok, nil
}

func (f *undeletableKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.entries[key]
	if !ok {
		return nil, xerrors.E(xerrors.KindNotFound, "undeletableKV.Get", key)
	}
	return data, nil
}

func (f *undeletableKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.entries[key] = value
	return nil
}

func TestDeleteNotSupported(t *testing.T) {
	store, err := entity.NewKVStore(&undeletableKV{entries: make(map[string][]byte)}, 0)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	h := newTestServer(t, store, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/entities", strings.NewReader(helloBody)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("put status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/entities/"+helloDigest, nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("delete status %d", rec.Code)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestServer(t, entity.NewHeapStore(nil), Options{MaxBodyBytes: 5})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/entities", strings.NewReader(helloBody)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("put status %d", rec.Code)
	}
	var created struct {
		Size int64 `json:"size"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Size != 5 {
		t.Fatalf("expected truncated write of 5 bytes, got %d", created.Size)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	h := newTestServer(t, entity.NewHeapStore(nil), Options{APIKey: "letmein"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "letmein")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, entity.NewHeapStore(nil), Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("collection get status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/entities/"+helloDigest, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("entity patch status %d", rec.Code)
	}
}

func TestNestedPathRejected(t *testing.T) {
	h := newTestServer(t, entity.NewHeapStore(nil), Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entities/ab/cd", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}
