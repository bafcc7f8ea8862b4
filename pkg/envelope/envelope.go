// Package envelope serializes HTTP response bodies into an entity store and
// reconstructs responses from their stored headers. It layers over any
// backend through the store contract and holds no storage state of its own.
package envelope

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/webcask/webcask/pkg/entity"
	"github.com/webcask/webcask/pkg/xerrors"
)

// Header markers understood by the serving layer. Names are exact; the
// front-end proxy matches X-Accel-Redirect case-sensitively.
const (
	HeaderContentDigest = "X-Content-Digest"
	HeaderContentLength = "Content-Length"
	HeaderAccelRedirect = "X-Accel-Redirect"
)

// Response is the envelope of one cached HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Codec writes and restores response bodies through an injected store.
type Codec struct {
	store entity.Store
}

// New returns a codec over store.
func New(store entity.Store) (*Codec, error) {
	if store == nil {
		return nil, xerrors.E(xerrors.KindInvalid, "envelope.New", "store")
	}
	return &Codec{store: store}, nil
}

// WriteResponse persists resp's body and annotates its headers with the
// digest and byte length. For redirect-capable stores the body is emptied
// and the proxy-redirect header set instead; otherwise the body is replaced
// with a freshly opened stream over the stored bytes.
func (c *Codec) WriteResponse(ctx context.Context, resp *Response) (string, int64, error) {
	const op = "envelope.Codec.WriteResponse"
	if resp == nil {
		return "", 0, xerrors.E(xerrors.KindInvalid, op, "response")
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	var body io.Reader = bytes.NewReader(nil)
	if resp.Body != nil {
		body = resp.Body
	}
	digest, size, err := c.store.Write(ctx, body)
	if resp.Body != nil {
		resp.Body.Close()
		resp.Body = nil
	}
	if err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindOf(err), op, "", err)
	}
	resp.Header.Set(HeaderContentDigest, digest)
	resp.Header.Set(HeaderContentLength, strconv.FormatInt(size, 10))
	if r, ok := c.store.(entity.Redirector); ok {
		resp.Header.Set(HeaderAccelRedirect, r.RedirectPath(digest))
		resp.Body = emptyBody()
		return digest, size, nil
	}
	stored, err := c.store.Open(ctx, digest)
	if err != nil {
		return "", 0, xerrors.Wrap(xerrors.KindOf(err), op, digest, err)
	}
	resp.Body = stored
	return digest, size, nil
}

// RestoreResponse reconstructs a response from stored headers. The digest
// marker is retained in the result. A missing marker or an absent entry
// yields a not-found error; the caller decides whether that is a cache miss
// or a corruption condition.
func (c *Codec) RestoreResponse(ctx context.Context, header http.Header) (*Response, error) {
	const op = "envelope.Codec.RestoreResponse"
	digest := header.Get(HeaderContentDigest)
	if digest == "" {
		return nil, xerrors.E(xerrors.KindNotFound, op, HeaderContentDigest)
	}
	restored := header.Clone()
	if r, ok := c.store.(entity.Redirector); ok {
		exists, err := c.store.Exists(ctx, digest)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindOf(err), op, digest, err)
		}
		if !exists {
			return nil, xerrors.E(xerrors.KindNotFound, op, digest)
		}
		restored.Set(HeaderAccelRedirect, r.RedirectPath(digest))
		return &Response{Status: http.StatusOK, Header: restored, Body: emptyBody()}, nil
	}
	body, err := c.store.Open(ctx, digest)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindOf(err), op, digest, err)
	}
	return &Response{Status: http.StatusOK, Header: restored, Body: body}, nil
}

func emptyBody() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(nil))
}
