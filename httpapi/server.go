// Package httpapi exposes the core's HTTP surface (§4.7) and an HTTP
// fan-out implementation of core.Transport for peers that aren't reachable
// over gossip.
//
// One Server struct owns the mux.Router and *http.Server, routes are
// registered in one place, and handlers are thin wrappers translating
// HTTP <-> core calls.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"vns/core"
	"vns/pkg/config"
)

// Server exposes the core over HTTP.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	store      *core.NamespaceStore
	transport  *Transport
	cfg        config.Config
	metrics    *core.Metrics
}

// NewServer constructs the router and wires routes to store.
func NewServer(addr string, store *core.NamespaceStore, transport *Transport, cfg config.Config, metrics *core.Metrics) *Server {
	s := &Server{router: mux.NewRouter(), store: store, transport: transport, cfg: cfg, metrics: metrics}
	s.routes()
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// Start blocks serving HTTP until the server is shut down or fails.
func (s *Server) Start() error { return s.httpServer.ListenAndServe() }

func (s *Server) routes() {
	s.router.Use(loggingMiddleware)
	s.router.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	s.router.HandleFunc("/resolve/{name}", s.handleResolve).Methods(http.MethodGet)
	s.router.HandleFunc("/transfer/{name}", s.handleTransfer).Methods(http.MethodPost)
	s.router.HandleFunc("/query", s.handleQuery).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/push-delta", s.handlePushDelta).Methods(http.MethodPost)
	if reg := s.metrics.Registry(); reg != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r)
		logrus.Infof("request_id=%s %s %s %s", reqID, r.Method, r.RequestURI, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sourcePeer extracts the calling peer's identity for admission/rate-limit
// accounting (§4.1). A production deployment would derive this from mTLS or
// a signed header; this reference server takes the X-VNS-Peer-Id header
// when present and otherwise the remote address.
func sourcePeer(r *http.Request) string {
	if id := r.Header.Get("X-VNS-Peer-Id"); id != "" {
		return id
	}
	return r.RemoteAddr
}

//---------------------------------------------------------------------
// POST /register
//---------------------------------------------------------------------

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg core.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed registration"})
		return
	}
	result, err := s.store.Register(reg, sourcePeer(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                     true,
		"content_id":             result.ContentID,
		"queued_for_propagation": result.QueuedForPropagation,
	})
}

//---------------------------------------------------------------------
// GET /resolve/{name}
//---------------------------------------------------------------------

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	res := s.store.Resolve(name)
	switch res.Status {
	case core.ResolveFound:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"found":   true,
			"records": res.Records,
			"owner":   res.Owner,
			"expires": res.ExpiresMs,
			"ttl":     res.TTLHint,
		})
	case core.ResolveExpired:
		writeJSON(w, http.StatusGone, map[string]interface{}{"found": false, "reason": "expired", "kind": "Expired"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"found": false})
	}
}

//---------------------------------------------------------------------
// POST /transfer/{name}
//---------------------------------------------------------------------

type transferRequest struct {
	NewOwner     string `json:"new_owner"`
	Signature    []byte `json:"signature"`
	CurrentOwner string `json:"current_owner"`
	TimestampMs  int64  `json:"timestamp_ms"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed transfer request"})
		return
	}
	result, err := s.store.Transfer(name, req.NewOwner, req.Signature, req.TimestampMs, sourcePeer(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                     true,
		"content_id":             result.ContentID,
		"version":                result.Version,
		"queued_for_propagation": result.QueuedForPropagation,
	})
}

//---------------------------------------------------------------------
// GET /query?owner=...
//---------------------------------------------------------------------

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	names := s.store.NamesOwnedBy(owner)
	writeJSON(w, http.StatusOK, map[string]interface{}{"names": names})
}

//---------------------------------------------------------------------
// GET /status
//---------------------------------------------------------------------

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	degraded, skipped := s.store.Degraded()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"entries": s.store.Len(),
		"digest":  s.store.Digest(),
		"degraded": map[string]interface{}{
			"value":          degraded,
			"skipped_entries": skipped,
		},
		"config": map[string]interface{}{
			"tld":            s.cfg.Namespace.TLD,
			"pow_difficulty": s.cfg.Admission.PoWDifficulty,
			"rate_limit":     s.cfg.Admission.RateLimit,
			"lease_days":     s.cfg.Namespace.LeaseDays,
			"default_ttl":    s.cfg.Namespace.DefaultTTL,
		},
	})
}

//---------------------------------------------------------------------
// POST /push-delta
//---------------------------------------------------------------------

func (s *Server) handlePushDelta(w http.ResponseWriter, r *http.Request) {
	if s.transport == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "HTTP transport not active on this node", "kind": "TransportUnavailable"})
		return
	}
	var d core.Delta
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed delta"})
		return
	}
	// Dispatched through the transport so the replicator's own-origin check
	// and logging run identically to the gossip path (§4.5); the merge
	// outcome itself is reported asynchronously via logs, at-least-once
	// delivery being explicitly tolerated (§4.6).
	s.transport.dispatch(d, sourcePeer(r))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeErr maps the core's error taxonomy (§7) onto HTTP status codes: 400
// for admission errors, 404 for not-found, 409 for stale, 429 for
// rate-limited, 503 for transport, 500 for unexpected. Sentinel-specific
// cases are checked before the generic AdmissionError fallback so a kind
// like RateLimited or Reserved — which the store always wraps in an
// AdmissionError — still gets its own status rather than a blanket 400.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := ""
	switch {
	case errors.Is(err, core.ErrNotFound):
		status, kind = http.StatusNotFound, "NotFound"
	case errors.Is(err, core.ErrExpired):
		status, kind = http.StatusGone, "Expired"
	case errors.Is(err, core.ErrStale):
		status, kind = http.StatusConflict, "Stale"
	case errors.Is(err, core.ErrRateLimited):
		status, kind = http.StatusTooManyRequests, "RateLimited"
	case errors.Is(err, core.ErrTransportUnavailable):
		status, kind = http.StatusServiceUnavailable, "TransportUnavailable"
	case errors.Is(err, core.ErrReserved):
		status, kind = http.StatusBadRequest, "Reserved"
	default:
		var admErr *core.AdmissionError
		if errors.As(err, &admErr) {
			status, kind = http.StatusBadRequest, core.ErrorKind(err)
		}
	}
	body := map[string]string{"error": err.Error()}
	if kind != "" {
		body["kind"] = kind
	}
	writeJSON(w, status, body)
}
