package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-intent-router/internal/audit"
	"github.com/tjfontaine/polyglot-intent-router/internal/composer"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/session"
)

// maxBodyBytes caps inbound message bodies.
const maxBodyBytes = 64 << 10

// Composer answers one inbound message.
type Composer interface {
	Compose(ctx context.Context, msg domain.IncomingMessage) (*domain.Reply, *domain.AuditEvent, error)
}

// Sessions is the subset of the session manager the API exposes.
type Sessions interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Unlock(ctx context.Context, sessionID, reason, traceID string) (*session.UnlockResult, error)
}

// APIConfig wires the HTTP handlers to the core.
type APIConfig struct {
	Composer   Composer
	Sessions   Sessions
	Recorder   composer.Recorder
	AuditSink  ports.AuditSink
	AdminToken string
	Logger     *slog.Logger
}

// API serves the messaging, session and audit endpoints.
type API struct {
	cfg    APIConfig
	logger *slog.Logger
}

func NewAPI(cfg APIConfig) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{cfg: cfg, logger: logger}
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", a.handleMessage)
		r.Get("/sessions/{id}", a.handleGetSession)
		r.Get("/audit/verify", a.handleVerifyAudit)
		r.With(AdminAuthMiddleware(a.cfg.AdminToken)).Post("/sessions/{id}/unlock", a.handleUnlock)
	})
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	SenderID  string `json:"sender_id"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (a *API) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, domain.ErrInvalidRequest("malformed JSON body").Wrap(err))
		return
	}

	reply, _, err := a.cfg.Composer.Compose(r.Context(), domain.IncomingMessage{
		SessionID:  req.SessionID,
		SenderID:   req.SenderID,
		Channel:    req.Channel,
		Text:       req.Text,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	AddLogField(r.Context(), "trace_id", reply.TraceID)
	AddLogField(r.Context(), "session_id", req.SessionID)
	writeJSON(w, http.StatusOK, reply)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.cfg.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleUnlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	traceID := composer.NewTraceID()

	res, err := a.cfg.Sessions.Unlock(r.Context(), id, domain.UnlockReasonSupervisor, traceID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if res.Released && a.cfg.Recorder != nil {
		a.cfg.Recorder.Record(r.Context(), &domain.AuditEvent{
			TraceID:   traceID,
			EventType: domain.AuditEventSupervisor,
			SessionID: id,
			DecisionSnapshot: &domain.OverrideDecision{
				PreviousDomain:    res.PreviousDomain,
				NewDomain:         res.Session.ActiveDomain,
				CanRouteToDefault: true,
				Action:            domain.ActionUnlock,
			},
		})
		a.logger.Info("supervisor unlock",
			slog.String("trace_id", traceID),
			slog.String("session_id", id),
			slog.String("previous_domain", res.PreviousDomain))
	}
	AddLogField(r.Context(), "trace_id", traceID)
	writeJSON(w, http.StatusOK, res.Session)
}

type verifyResponse struct {
	OK     bool   `json:"ok"`
	Events int    `json:"events"`
	Error  string `json:"error,omitempty"`
}

func (a *API) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	if a.cfg.AuditSink == nil {
		writeError(w, r, domain.ErrNotFound("no audit sink configured"))
		return
	}
	n, err := audit.VerifySink(r.Context(), a.cfg.AuditSink)
	resp := verifyResponse{OK: err == nil, Events: n}
	if err != nil {
		var chainErr *audit.ChainError
		if !errors.As(err, &chainErr) {
			writeError(w, r, err)
			return
		}
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	status := http.StatusInternalServerError
	var body errorBody
	body.Error.Kind = "internal"
	body.Error.Message = "internal error"

	var de *domain.Error
	if errors.As(err, &de) {
		status = de.HTTPStatusCode()
		body.Error.Kind = string(de.Kind)
		if status < http.StatusInternalServerError {
			body.Error.Message = strings.TrimSpace(de.Message)
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
