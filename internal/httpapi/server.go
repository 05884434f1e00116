package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"time"

	"cleantalk-antispam/internal/antispam"
	"cleantalk-antispam/internal/common/errors"
	"cleantalk-antispam/internal/common/logger"
	"cleantalk-antispam/internal/session"

	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker is the part of *antispam.Component the HTTP surface uses.
type Checker interface {
	IsAllowUser(ctx context.Context, rc antispam.RequestContext, sess antispam.Session, email, nickname string) (bool, string, error)
	IsAllowMessage(ctx context.Context, rc antispam.RequestContext, sess antispam.Session, message, email, nickname string) (bool, string, error)
	StartFormSubmitTime(ctx context.Context, sess antispam.Session, formID string) error
	CheckJsCode() string
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RequestRecorder receives one sample per served request.
type RequestRecorder interface {
	RecordRequest(ctx context.Context, route string, status int, duration time.Duration)
}

type Options struct {
	Checker    Checker
	Sessions   session.Store
	Logger     logger.Logger
	CookieName string
	CookieTTL  time.Duration
	// Probes are extra readiness checks keyed by dependency name.
	Probes   map[string]Pinger
	Recorder RequestRecorder

	// TrustedProxies are the peers whose forwarding headers are believed.
	// Empty means the client address is always the TCP peer.
	TrustedProxies []netip.Prefix
}

type Server struct {
	checker    Checker
	sessions   session.Store
	logger     logger.Logger
	decoder    *schema.Decoder
	cookieName string
	cookieTTL  time.Duration
	probes     map[string]Pinger
	recorder   RequestRecorder
	trusted    []netip.Prefix
}

func NewServer(opts Options) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		checker:    opts.Checker,
		sessions:   opts.Sessions,
		logger:     opts.Logger,
		decoder:    decoder,
		cookieName: opts.CookieName,
		cookieTTL:  opts.CookieTTL,
		probes:     map[string]Pinger{"session": opts.Sessions},
		recorder:   opts.Recorder,
		trusted:    opts.TrustedProxies,
	}
	for name, p := range opts.Probes {
		if p != nil {
			s.probes[name] = p
		}
	}
	if s.logger == nil {
		s.logger = logger.NewNoOpLogger()
	}
	if s.cookieName == "" {
		s.cookieName = DefaultSessionCookie
	}
	return s
}

// Routes builds the public mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /forms/{formID}", s.handleStartForm)
	mux.Handle("POST /check/user", s.Guard(CheckUser, http.HandlerFunc(writeVerdict)))
	mux.Handle("POST /check/message", s.Guard(CheckMessage, http.HandlerFunc(writeVerdict)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.logRequests(mux)
}

type formStartResponse struct {
	FormID  string `json:"formId"`
	CheckJS string `json:"checkJs"`
}

func (s *Server) handleStartForm(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("formID")
	sess := s.sessions.ForSession(s.sessionID(w, r))

	if err := s.checker.StartFormSubmitTime(r.Context(), sess, formID); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formStartResponse{
		FormID:  formID,
		CheckJS: s.checker.CheckJsCode(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, probe := range s.probes {
		if err := probe.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		s.logger.Warn("Dependencies not ready", map[string]interface{}{"failed": failed})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"failed": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	stdErr := errors.Normalize(err)
	status := statusForCode(stdErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", map[string]interface{}{
			"code":  stdErr.Code,
			"error": stdErr.Details,
		})
	}
	writeJSON(w, status, map[string]interface{}{
		"code":    stdErr.Code,
		"message": stdErr.Message,
	})
}

func statusForCode(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidationFailed, errors.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeExternalService, errors.ErrCodeCleantalkAPI:
		return http.StatusBadGateway
	case errors.ErrCodeSessionStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if s.recorder != nil {
			s.recorder.RecordRequest(r.Context(), route, rec.status, elapsed)
		}
		s.logger.Debug("HTTP request", map[string]interface{}{
			"route":    route,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": elapsed.String(),
		})
	})
}
