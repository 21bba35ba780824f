package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/flashbots/maskagg/protocol"
	"github.com/flashbots/maskagg/report"
	"github.com/flashbots/maskagg/session"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SessionAPIConfig limits what a single request may run.
type SessionAPIConfig struct {
	// MaxBodyBytes caps the size of a submitted session configuration.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// MaxMembers caps the Members of a submitted session.
	MaxMembers int `yaml:"max_members"`
	// MaxRounds caps the rounds of a submitted session.
	MaxRounds int `yaml:"max_rounds"`
	// MaxConcurrent caps the sessions running at once.
	MaxConcurrent int `yaml:"max_concurrent"`
	// RunTimeout bounds the wall-clock time of one session run.
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// DefaultSessionAPIConfig returns the limits used when none are configured.
func DefaultSessionAPIConfig() SessionAPIConfig {
	return SessionAPIConfig{
		MaxBodyBytes:  1 << 20,
		MaxMembers:    10_000,
		MaxRounds:     1_000,
		MaxConcurrent: 4,
		RunTimeout:    time.Minute,
	}
}

// RoundSummary is the per-round part of a session response.
type RoundSummary struct {
	Round        int                  `json:"round"`
	Type         protocol.SessionType `json:"type"`
	Members      int                  `json:"members"`
	Contributed  int                  `json:"contributed"`
	Completeness decimal.Decimal      `json:"completeness"`
	Gaps         []report.Gap         `json:"gaps"`
	GroupSum     protocol.GroupSum    `json:"group_sum"`
}

// SessionResponse is returned after a session has run.
type SessionResponse struct {
	SessionID string         `json:"session_id"`
	Rounds    []RoundSummary `json:"rounds"`
}

// ErrorResponse carries a request error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionsResponse lists the stored sessions.
type SessionsResponse struct {
	Sessions []string `json:"sessions"`
}

// SessionAPI runs submitted sessions and serves their stored reports.
type SessionAPI struct {
	config SessionAPIConfig
	store  report.Store
	log    *slog.Logger
	slots  chan struct{}
	ready  func() bool

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewSessionAPI creates the API on top of a report store.
func NewSessionAPI(config SessionAPIConfig, store report.Store, log *slog.Logger) *SessionAPI {
	if log == nil {
		log = slog.Default()
	}
	defaults := DefaultSessionAPIConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	return &SessionAPI{
		config: config,
		store:  store,
		log:    log,
		slots:    make(chan struct{}, config.MaxConcurrent),
		ready:    func() bool { return true },
		inflight: make(map[string]struct{}),
	}
}

// SetReadiness makes POST /sessions answer 503 while ready reports false.
func (a *SessionAPI) SetReadiness(ready func() bool) {
	if ready == nil {
		ready = func() bool { return true }
	}
	a.ready = ready
}

// reserve claims a session id for one run at a time.
func (a *SessionAPI) reserve(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.inflight[sessionID]; ok {
		return false
	}
	a.inflight[sessionID] = struct{}{}
	return true
}

func (a *SessionAPI) release(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inflight, sessionID)
}

// RegisterRoutes registers the session endpoints.
func (a *SessionAPI) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", a.handleRunSession)
		r.Get("/", a.handleListSessions)
		r.Get("/{session_id}/rounds", a.handleGetRounds)
		r.Get("/{session_id}/rounds/{round}", a.handleGetRound)
	})
}

// ParseSessionConfig decodes a YAML or JSON session configuration on top of
// the defaults. JSON durations are nanoseconds, YAML durations may also be
// strings such as "10s".
func ParseSessionConfig(data []byte) (*protocol.SessionConfig, error) {
	cfg := protocol.DefaultSessionConfig()

	var err error
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing session config: %w", err)
	}
	return cfg, nil
}

// RunSession validates cfg against the API limits, runs it and stores every
// round report.
func (a *SessionAPI) RunSession(ctx context.Context, cfg *protocol.SessionConfig) ([]*report.RoundReport, error) {
	if a.config.MaxMembers > 0 && cfg.Members > a.config.MaxMembers {
		return nil, &protocol.ConfigurationError{Field: "members", Reason: fmt.Sprintf("at most %d members are accepted", a.config.MaxMembers)}
	}
	if a.config.MaxRounds > 0 && len(cfg.Rounds) > a.config.MaxRounds {
		return nil, &protocol.ConfigurationError{Field: "rounds", Reason: fmt.Sprintf("at most %d rounds are accepted", a.config.MaxRounds)}
	}

	select {
	case a.slots <- struct{}{}:
		defer func() { <-a.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if a.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.RunTimeout)
		defer cancel()
	}

	s, err := session.New(cfg,
		session.WithLogger(a.log),
		session.WithReporter(report.Reporters{
			report.StoreReporter{Store: a.store},
			report.LogReporter{Logger: a.log},
		}),
	)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx)
}

func (a *SessionAPI) handleRunSession(w http.ResponseWriter, r *http.Request) {
	if !a.ready() {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "server is draining"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.config.MaxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}

	cfg, err := ParseSessionConfig(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if !a.reserve(cfg.SessionID) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: fmt.Sprintf("session %q is already running", cfg.SessionID)})
		return
	}
	defer a.release(cfg.SessionID)

	if _, err := a.store.Rounds(r.Context(), cfg.SessionID); err == nil {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: fmt.Sprintf("session %q already exists", cfg.SessionID)})
		return
	} else if !errors.Is(err, report.ErrNotFound) {
		a.log.Error("checking for existing session", "session", cfg.SessionID, "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "could not read reports"})
		return
	}

	reports, err := a.RunSession(r.Context(), cfg)
	var configErr *protocol.ConfigurationError
	switch {
	case errors.As(err, &configErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		a.log.Error("session run failed", "session", cfg.SessionID, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}

	resp := SessionResponse{SessionID: cfg.SessionID, Rounds: make([]RoundSummary, 0, len(reports))}
	for _, rr := range reports {
		resp.Rounds = append(resp.Rounds, RoundSummary{
			Round:        rr.Round,
			Type:         rr.Type,
			Members:      rr.Members,
			Contributed:  rr.Contributed,
			Completeness: rr.Completeness,
			Gaps:         rr.Gaps,
			GroupSum:     rr.GroupSum(),
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *SessionAPI) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := a.store.Sessions(r.Context())
	if err != nil {
		a.log.Error("listing sessions", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "could not read reports"})
		return
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: ids})
}

func (a *SessionAPI) handleGetRounds(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	reports, err := a.store.Rounds(r.Context(), sessionID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (a *SessionAPI) handleGetRound(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil || round < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid round number"})
		return
	}

	rr, err := a.store.Round(r.Context(), sessionID, round)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rr)
}

func (a *SessionAPI) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, report.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	a.log.Error("reading reports", "err", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "could not read reports"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
