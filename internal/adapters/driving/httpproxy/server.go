package httpproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
	"github.com/custodia-labs/larder/internal/logger"
)

// Route prefixes served locally rather than proxied.
const (
	AssetsPrefix  = "/assets/"
	ControlPrefix = "/_larder/"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Ports holds the services the proxy depends on.
type Ports struct {
	Cache     driving.CacheController
	Assets    driving.AssetReader
	Sync      driving.SyncEngine
	Lifecycle driving.CacheLifecycle
	Metrics   http.Handler
}

// Server is the local HTTP front.
type Server struct {
	ports  Ports
	origin *url.URL
	mux    *http.ServeMux
}

// NewServer creates the proxy. origin resolves origin-relative requests;
// it may be empty when every request arrives in absolute form.
func NewServer(ports Ports, origin string) (*Server, error) {
	if ports.Cache == nil {
		return nil, errors.New("cache controller is required")
	}

	s := &Server{ports: ports, mux: http.NewServeMux()}
	if origin != "" {
		u, err := url.Parse(origin)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("%w: origin %q must be an absolute URL", domain.ErrInvalidInput, origin)
		}
		s.origin = u
	}

	s.mux.HandleFunc(AssetsPrefix, s.handleAsset)
	s.mux.HandleFunc(ControlPrefix+"status", s.handleStatus)
	if ports.Metrics != nil {
		s.mux.Handle(ControlPrefix+"metrics", ports.Metrics)
	}
	s.mux.HandleFunc("/", s.handleProxy)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Absolute-form requests are proxy traffic, whatever their path.
	if r.URL.IsAbs() {
		s.handleProxy(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("Listening on http://%s", ln.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// handleProxy answers a request through the cache controller.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target, err := s.target(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out.Header = r.Header.Clone()
	stripHopHeaders(out.Header)
	out.ContentLength = r.ContentLength

	resp, err := s.ports.Cache.Fetch(r.Context(), out)
	if err != nil {
		logger.Warn("Proxy %s %s: %v", r.Method, target, err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	stripHopHeaders(header)
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Debug("Proxy copy %s: %v", target, err)
	}
}

// target resolves the outbound URL for r.
func (s *Server) target(r *http.Request) (string, error) {
	if r.URL.IsAbs() {
		return r.URL.String(), nil
	}
	if s.origin == nil {
		return "", errors.New("no origin configured for relative requests")
	}
	ref, err := url.Parse(r.URL.RequestURI())
	if err != nil {
		return "", err
	}
	return s.origin.ResolveReference(ref).String(), nil
}

// handleAsset serves a stored asset. Range requests are honoured when the
// store hands back a seekable reader.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.ports.Assets == nil {
		http.NotFound(w, r)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, AssetsPrefix)
	rc, size, err := s.ports.Assets.Open(r.Context(), key)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, key, time.Time{}, rs)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, rc)
}

// statusResponse is the JSON body of /_larder/status.
type statusResponse struct {
	Collection       string    `json:"collection"`
	Running          bool      `json:"running"`
	LastSync         time.Time `json:"last_sync"`
	RecordsProcessed int       `json:"records_processed"`
	ErrorCount       int       `json:"error_count"`
	PendingDownloads int       `json:"pending_downloads"`
	LastError        string    `json:"last_error,omitempty"`
	CacheGeneration  string    `json:"cache_generation,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var resp statusResponse
	if s.ports.Sync != nil {
		st := s.ports.Sync.Status()
		resp = statusResponse{
			Collection:       st.Collection,
			Running:          st.Running,
			LastSync:         st.LastSync,
			RecordsProcessed: st.RecordsProcessed,
			ErrorCount:       st.ErrorCount,
			PendingDownloads: st.PendingDownloads,
			LastError:        st.LastError,
		}
	}
	if s.ports.Lifecycle != nil {
		resp.CacheGeneration = s.ports.Lifecycle.Active()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// writeStorageError maps an asset store error onto an HTTP status.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "asset not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrSecurity):
		http.Error(w, "invalid asset key", http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidState):
		http.Error(w, "asset storage unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, domain.StorageErrorCode(err), http.StatusInternalServerError)
	}
}

func stripHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
