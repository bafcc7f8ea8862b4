package envelope

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/webcask/webcask/pkg/entity"
	"github.com/webcask/webcask/pkg/xerrors"
)

const (
	helloBody   = "hello world"
	helloDigest = "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"
)

func TestWriteResponseAnnotatesHeaders(t *testing.T) {
	ctx := context.Background()
	codec, err := New(entity.NewHeapStore(nil))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	resp := &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   io.NopCloser(strings.NewReader(helloBody)),
	}
	digest, size, err := codec.WriteResponse(ctx, resp)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if digest != helloDigest {
		t.Fatalf("digest %s", digest)
	}
	if size != int64(len(helloBody)) {
		t.Fatalf("size %d", size)
	}
	if got := resp.Header.Get(HeaderContentDigest); got != helloDigest {
		t.Fatalf("%s: %s", HeaderContentDigest, got)
	}
	if got := resp.Header.Get(HeaderContentLength); got != "11" {
		t.Fatalf("%s: %s", HeaderContentLength, got)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/plain" {
		t.Fatalf("existing header lost: %s", got)
	}

	// The body is replaced with a stream over the stored bytes.
	replay, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	if string(replay) != helloBody {
		t.Fatalf("body %q", replay)
	}
}

func TestRestoreResponseRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := entity.NewHeapStore(nil)
	codec, _ := New(store)

	orig := &Response{
		Header: make(http.Header),
		Body:   io.NopCloser(strings.NewReader(helloBody)),
	}
	if _, _, err := codec.WriteResponse(ctx, orig); err != nil {
		t.Fatalf("write: %v", err)
	}
	orig.Body.Close()

	restored, err := codec.RestoreResponse(ctx, orig.Header)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer restored.Body.Close()
	if restored.Status != http.StatusOK {
		t.Fatalf("status %d", restored.Status)
	}
	if got := restored.Header.Get(HeaderContentDigest); got != helloDigest {
		t.Fatalf("digest marker lost: %s", got)
	}
	body, err := io.ReadAll(restored.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != helloBody {
		t.Fatalf("body %q", body)
	}
}

func TestRestoreResponseMissingMarker(t *testing.T) {
	codec, _ := New(entity.NewHeapStore(nil))
	_, err := codec.RestoreResponse(context.Background(), make(http.Header))
	if !xerrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRestoreResponseAbsentEntry(t *testing.T) {
	codec, _ := New(entity.NewHeapStore(nil))
	header := make(http.Header)
	header.Set(HeaderContentDigest, helloDigest)
	_, err := codec.RestoreResponse(context.Background(), header)
	if !xerrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccelRedirectWrite(t *testing.T) {
	ctx := context.Background()
	store, err := entity.NewAccelStore("accelredirect:" + t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	codec, _ := New(store)

	resp := &Response{
		Header: make(http.Header),
		Body:   io.NopCloser(strings.NewReader(helloBody)),
	}
	if _, _, err := codec.WriteResponse(ctx, resp); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := "/cache/" + helloDigest[:2] + "/" + helloDigest[2:]
	if got := resp.Header.Get(HeaderAccelRedirect); got != want {
		t.Fatalf("%s: got %s want %s", HeaderAccelRedirect, got, want)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(body) != 0 {
		t.Fatalf("expected empty body, got %d bytes", len(body))
	}
	// The length header still reflects the stored entity.
	if got := resp.Header.Get(HeaderContentLength); got != "11" {
		t.Fatalf("%s: %s", HeaderContentLength, got)
	}
}

func TestAccelRedirectRestore(t *testing.T) {
	ctx := context.Background()
	store, err := entity.NewAccelStore("accelredirect:" + t.TempDir() + "#/proxied")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	codec, _ := New(store)

	resp := &Response{
		Header: make(http.Header),
		Body:   io.NopCloser(strings.NewReader(helloBody)),
	}
	if _, _, err := codec.WriteResponse(ctx, resp); err != nil {
		t.Fatalf("write: %v", err)
	}

	restored, err := codec.RestoreResponse(ctx, resp.Header)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer restored.Body.Close()
	want := "/proxied/" + helloDigest[:2] + "/" + helloDigest[2:]
	if got := restored.Header.Get(HeaderAccelRedirect); got != want {
		t.Fatalf("%s: got %s want %s", HeaderAccelRedirect, got, want)
	}
	body, _ := io.ReadAll(restored.Body)
	if len(body) != 0 {
		t.Fatalf("expected empty body, got %d bytes", len(body))
	}
}

func TestAccelRedirectRestorePurgedEntry(t *testing.T) {
	ctx := context.Background()
	store, err := entity.NewAccelStore("accelredirect:" + t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	codec, _ := New(store)

	resp := &Response{
		Header: make(http.Header),
		Body:   io.NopCloser(strings.NewReader(helloBody)),
	}
	digest, _, err := codec.WriteResponse(ctx, resp)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Purge(ctx, digest); err != nil {
		t.Fatalf("purge: %v", err)
	}

	_, err = codec.RestoreResponse(ctx, resp.Header)
	if !xerrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWriteResponseNilBody(t *testing.T) {
	codec, _ := New(entity.NewHeapStore(nil))
	resp := &Response{}
	digest, size, err := codec.WriteResponse(context.Background(), resp)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if size != 0 {
		t.Fatalf("size %d", size)
	}
	// Digest of zero bytes.
	if digest != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Fatalf("digest %s", digest)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error")
	}
}
