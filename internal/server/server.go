// Package server exposes the webhook endpoint, polling controls and run
// results over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/poller"
	"github.com/ppiankov/patchpilot/internal/store"
	"github.com/ppiankov/patchpilot/internal/webhook"
)

// GitHub caps deliveries at 25 MB.
const maxWebhookBytes = 25 << 20

// Poller is the polling control surface.
type Poller interface {
	Start() bool
	Stop() bool
	Status() poller.Status
	PollNow(ctx context.Context) (poller.Summary, error)
}

// WebhookHandler verifies and processes one signed delivery.
type WebhookHandler interface {
	Verify(payload []byte, signature string) error
	Handle(ctx context.Context, payload []byte, signature string) error
}

// Config holds server configuration.
type Config struct {
	Listen  string // ":8080"
	Store   store.Store
	Webhook WebhookHandler
	Poller  Poller
}

// Server is the patchpilot HTTP API.
type Server struct {
	cfg  Config
	srv  *http.Server
	mu   sync.Mutex
	addr string
	now  func() time.Time
}

// New creates a server.
func New(cfg Config) *Server {
	return &Server{cfg: cfg, now: time.Now}
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/github", s.handleWebhook)
	mux.HandleFunc("POST /api/polling/start", s.handlePollingStart)
	mux.HandleFunc("POST /api/polling/stop", s.handlePollingStop)
	mux.HandleFunc("GET /api/polling/status", s.handlePollingStatus)
	mux.HandleFunc("POST /api/polling/trigger", s.handlePollingTrigger)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/pull-requests/{id}/runs", s.handlePullRequestRuns)
	mux.HandleFunc("POST /api/patches/{id}/apply", s.handleApplyPatch)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins listening. Returns the actual address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	srv := s.srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("http server started", "addr", s.addr)
	return s.addr, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Addr returns the listening address after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Webhook == nil {
		writeError(w, http.StatusServiceUnavailable, "webhooks are not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	signature := r.Header.Get(webhook.SignatureHeader)
	if err := s.cfg.Webhook.Verify(payload, signature); err != nil {
		slog.Warn("webhook rejected", "delivery", r.Header.Get("X-GitHub-Delivery"), "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	if event != "" && event != "pull_request" {
		if event == "ping" {
			writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	if err := s.cfg.Webhook.Handle(r.Context(), payload, signature); err != nil {
		slog.Warn("webhook rejected", "delivery", r.Header.Get("X-GitHub-Delivery"), "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handlePollingStart(w http.ResponseWriter, _ *http.Request) {
	if !s.pollerReady(w) {
		return
	}
	started := s.cfg.Poller.Start()
	writeJSON(w, http.StatusOK, pollingResponse(s.cfg.Poller.Status(), started, "Polling started", "Polling already running"))
}

func (s *Server) handlePollingStop(w http.ResponseWriter, _ *http.Request) {
	if !s.pollerReady(w) {
		return
	}
	stopped := s.cfg.Poller.Stop()
	writeJSON(w, http.StatusOK, pollingResponse(s.cfg.Poller.Status(), stopped, "Polling stopped", "Polling not running"))
}

func (s *Server) handlePollingStatus(w http.ResponseWriter, _ *http.Request) {
	if !s.pollerReady(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Poller.Status())
}

func (s *Server) handlePollingTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.pollerReady(w) {
		return
	}
	sum, err := s.cfg.Poller.PollNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "poll: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) pollerReady(w http.ResponseWriter) bool {
	if s.cfg.Poller == nil {
		writeError(w, http.StatusServiceUnavailable, "polling is not configured")
		return false
	}
	return true
}

type pollingStatusResponse struct {
	poller.Status
	Changed bool   `json:"changed"`
	Message string `json:"message"`
}

func pollingResponse(st poller.Status, changed bool, yes, no string) pollingStatusResponse {
	msg := no
	if changed {
		msg = yes
	}
	return pollingStatusResponse{Status: st, Changed: changed, Message: msg}
}

// RunDetail is a run with its findings and their patches.
type RunDetail struct {
	model.Run
	Findings []model.Finding `json:"findings"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	run, err := s.cfg.Store.Run(ctx, id)
	if err != nil {
		writeStoreError(w, "run", err)
		return
	}

	findings, err := s.cfg.Store.FindingsForRun(ctx, id)
	if err != nil {
		writeStoreError(w, "findings", err)
		return
	}
	for i := range findings {
		patches, err := s.cfg.Store.PatchesForFinding(ctx, findings[i].ID)
		if err != nil {
			writeStoreError(w, "patches", err)
			return
		}
		findings[i].SuggestedPatches = patches
	}
	if findings == nil {
		findings = []model.Finding{}
	}
	writeJSON(w, http.StatusOK, RunDetail{Run: *run, Findings: findings})
}

func (s *Server) handlePullRequestRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.cfg.Store.RunsForPullRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, "runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type applyRequest struct {
	AppliedBy string `json:"appliedBy"`
}

func (s *Server) handleApplyPatch(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	appliedBy := strings.TrimSpace(req.AppliedBy)
	if appliedBy == "" {
		appliedBy = "api"
	}

	p, err := s.cfg.Store.ApplyPatch(r.Context(), r.PathValue("id"), appliedBy, s.now())
	if err != nil {
		writeStoreError(w, "patch", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeStoreError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrPatchAlreadyApplied):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("store error", "what", what, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": map[string]any{"message": msg, "code": code}})
}
