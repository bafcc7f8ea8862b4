// Package httpapi exposes an entity store over a small HTTP surface:
//
//	PUT    /entities            store the request body, answer digest and size
//	GET    /entities/{digest}   restore the stored response envelope
//	HEAD   /entities/{digest}   existence check
//	DELETE /entities/{digest}   purge
//	GET    /healthz
//
// GET restores through the envelope codec, so a store constructed from an
// accelredirect descriptor answers with X-Accel-Redirect and an empty body
// for the front-end proxy to resolve.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/webcask/webcask/pkg/entity"
	"github.com/webcask/webcask/pkg/envelope"
	"github.com/webcask/webcask/pkg/server/middleware"
	"github.com/webcask/webcask/pkg/xerrors"
)

// Server exposes an entity.Store over HTTP.
type Server struct {
	store entity.Store
	codec *envelope.Codec
	log   logrus.FieldLogger
	opts  Options
}

// Options configure auth, rate limiting, and body size.
type Options struct {
	APIKey       string
	RateLimit    middleware.RateLimitOptions
	MaxBodyBytes int64
}

// New builds a server over store.
func New(store entity.Store, log logrus.FieldLogger, opts Options) (*Server, error) {
	codec, err := envelope.New(store)
	if err != nil {
		return nil, err
	}
	return &Server{store: store, codec: codec, log: log, opts: opts}, nil
}

// Start begins listening on addr until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	return srv.ListenAndServe()
}

// Handler returns the routed and middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/entities", s.handleCollection)
	mux.HandleFunc("/entities/", s.handleEntity)
	return middleware.Wrap(mux,
		middleware.Recover(s.log),
		middleware.Logging(s.log),
		middleware.APIKeyAuth(s.opts.APIKey),
		middleware.RateLimit(s.opts.RateLimit),
	)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut, http.MethodPost:
		s.putEntity(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) putEntity(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if s.opts.MaxBodyBytes > 0 {
		body = io.LimitReader(r.Body, s.opts.MaxBodyBytes)
	}
	digest, size, err := s.store.Write(r.Context(), body)
	if err != nil {
		s.httpError(w, err)
		return
	}
	w.Header().Set(envelope.HeaderContentDigest, digest)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(struct {
		Digest string `json:"digest"`
		Size   int64  `json:"size"`
	}{Digest: digest, Size: size})
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	digest := strings.TrimPrefix(r.URL.Path, "/entities/")
	if digest == "" || strings.Contains(digest, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.getEntity(w, r, digest)
	case http.MethodHead:
		s.headEntity(w, r, digest)
	case http.MethodDelete:
		if err := s.store.Purge(r.Context(), digest); err != nil {
			s.httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request, digest string) {
	hdr := make(http.Header)
	hdr.Set(envelope.HeaderContentDigest, digest)
	resp, err := s.codec.RestoreResponse(r.Context(), hdr)
	if err != nil {
		s.httpError(w, err)
		return
	}
	defer resp.Body.Close()
	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.Status)
	io.Copy(w, resp.Body)
}

func (s *Server) headEntity(w http.ResponseWriter, r *http.Request, digest string) {
	ok, err := s.store.Exists(r.Context(), digest)
	if err != nil {
		s.httpError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set(envelope.HeaderContentDigest, digest)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) httpError(w http.ResponseWriter, err error) {
	switch xerrors.KindOf(err) {
	case xerrors.KindNotFound:
		http.Error(w, "not found", http.StatusNotFound)
	case xerrors.KindNotSupported:
		http.Error(w, "not supported", http.StatusNotImplemented)
	case xerrors.KindInvalid:
		http.Error(w, "bad request", http.StatusBadRequest)
	default:
		if s.log != nil {
			s.log.WithError(err).Error("request failed")
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
