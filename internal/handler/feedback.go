// Package handler implements the HTTP transport layer.
//
// Handlers parse requests, resolve a client identity for rate limiting, run
// the ingestion pipeline, and map its typed failures onto HTTP status codes.
// They contain no business rules and no SQL.
package handler

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/driftboard/feedback/internal/config"
	"github.com/driftboard/feedback/internal/ingest"
	"github.com/driftboard/feedback/internal/model"
	"github.com/driftboard/feedback/internal/repository"
)

// FeedbackHandler groups every feedback route. The two submission endpoints
// share a store and an enhancer but run through separate ingest services:
// the plain one has AI forced off and a higher rate cap.
type FeedbackHandler struct {
	plain     *ingest.Service
	enhanced  *ingest.Service
	repo      *repository.SQLiteRepository
	defaultTier config.TierID
	overrides *config.Overrides
	logger    *slog.Logger
	templates map[string]*template.Template
}

// Config wires a FeedbackHandler.
type Config struct {
	Plain       *ingest.Service
	Enhanced    *ingest.Service
	Repo        *repository.SQLiteRepository
	DefaultTier config.TierID
	Overrides   *config.Overrides
	Logger      *slog.Logger
	TemplateFS  fs.FS
}

// New constructs the handler and parses the admin page templates.
// Template parsing panics on error: broken templates should crash at boot,
// not at first request.
func New(cfg Config) *FeedbackHandler {
	if cfg.DefaultTier == "" {
		cfg.DefaultTier = config.TierBasic
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &FeedbackHandler{
		plain:       cfg.Plain,
		enhanced:    cfg.Enhanced,
		repo:        cfg.Repo,
		defaultTier: cfg.DefaultTier,
		overrides:   cfg.Overrides,
		logger:      cfg.Logger,
	}
	if cfg.TemplateFS != nil {
		h.templates = parseTemplates(cfg.TemplateFS)
	}
	return h
}

// HandleSubmit processes POST /api/feedback: the plain endpoint, AI disabled.
func (h *FeedbackHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.plain, false)
}

// HandleSubmitEnhanced processes POST /api/feedback/enhanced: same
// validation and rate-limit logic, AI enabled, lower cap.
func (h *FeedbackHandler) HandleSubmitEnhanced(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.enhanced, true)
}

func (h *FeedbackHandler) submit(w http.ResponseWriter, r *http.Request, svc *ingest.Service, aiPath bool) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", 0)
		return
	}

	identity := h.resolveIdentity(r)
	tier := h.resolveTier(r)

	record, err := svc.Submit(r.Context(), raw, identity, tier)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	resp := model.SubmitResponse{Success: true, ID: record.ID}
	if aiPath && record.Enhancement != nil {
		resp.Summary = record.Enhancement.Summary
		resp.Category = record.Enhancement.Category
		resp.DevQuestion = record.Enhancement.DevQuestion
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// writeIngestError maps the ingest taxonomy onto HTTP. Storage internals are
// never leaked; the generic message is all the caller gets.
func (h *FeedbackHandler) writeIngestError(w http.ResponseWriter, err error) {
	var invalid *ingest.InvalidError
	var limited *ingest.RateLimitedError
	var storage *ingest.StorageError

	switch {
	case errors.As(err, &invalid):
		h.writeError(w, http.StatusBadRequest, invalid.Reason, 0)
	case errors.As(err, &limited):
		retrySecs := int64((limited.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(retrySecs, 10))
		h.writeError(w, http.StatusTooManyRequests, "too many submissions, please try again later", limited.RetryAfter.Milliseconds())
	case errors.As(err, &storage):
		h.writeError(w, http.StatusInternalServerError, "failed to save feedback", 0)
	default:
		// Config resolution errors land here: operator-facing, logged by the
		// service, opaque to the caller.
		h.writeError(w, http.StatusInternalServerError, "internal error", 0)
	}
}

// resolveIdentity maps the caller to a rate-limit key. An authenticated user
// id from the auth collaborator wins; otherwise a fingerprint is derived from
// forwarded address, user agent, and origin. The fingerprint is a hash used
// only for rate limiting, never persisted.
func (h *FeedbackHandler) resolveIdentity(r *http.Request) *ingest.ClientIdentity {
	if user := strings.TrimSpace(r.Header.Get("X-Feedback-User")); user != "" {
		return &ingest.ClientIdentity{Key: "user:" + user, Authenticated: true}
	}

	addr := clientAddr(r)
	if addr == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(addr + "\n" + r.UserAgent() + "\n" + r.Header.Get("Origin")))
	return &ingest.ClientIdentity{Key: "anon:" + hex.EncodeToString(sum[:16])}
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *FeedbackHandler) resolveTier(r *http.Request) config.TierID {
	if t := strings.TrimSpace(r.Header.Get("X-Feedback-Tier")); t != "" {
		return config.TierID(t)
	}
	return h.defaultTier
}

// HandleList processes GET /api/feedback with optional status filter and
// pagination. Heavy fields are stripped: the list view does not need the
// context blob or element text.
func (h *FeedbackHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	status := r.URL.Query().Get("status")
	if status != "" && !model.ValidStatus(status) {
		h.writeError(w, http.StatusBadRequest, "unknown status filter", 0)
		return
	}

	feedbacks, err := h.repo.List(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("failed to list feedback", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to retrieve feedback", 0)
		return
	}

	for _, f := range feedbacks {
		f.Context = nil
		if f.TargetElement != nil {
			f.TargetElement.TextPreview = ""
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(feedbacks)
}

// HandleGet processes GET /api/feedback/{id}.
func (h *FeedbackHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	feedback, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get feedback", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to retrieve feedback", 0)
		return
	}
	if feedback == nil {
		h.writeError(w, http.StatusNotFound, "feedback not found", 0)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(feedback)
}

// HandleUpdateStatus processes PATCH /api/feedback/{id}/status: the
// administrator triage transition. Gated on the tier's admin.statusUpdates.
func (h *FeedbackHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminConfig(w)
	if !ok {
		return
	}
	if !admin.StatusUpdates {
		h.writeError(w, http.StatusForbidden, "status updates are not enabled for this deployment", 0)
		return
	}

	var req model.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", 0)
		return
	}
	if !model.ValidStatus(req.Status) {
		h.writeError(w, http.StatusBadRequest, "unknown status value", 0)
		return
	}

	id := r.PathValue("id")
	err := h.repo.UpdateStatus(r.Context(), id, req.Status)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(w, http.StatusNotFound, "feedback not found", 0)
		return
	}
	if err != nil {
		h.logger.Error("failed to update status", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update status", 0)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "id": id, "status": req.Status})
}

// HandleStats processes GET /api/feedback/stats for the admin dashboard.
// Gated on the tier's admin.showStats.
func (h *FeedbackHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminConfig(w)
	if !ok {
		return
	}
	if !admin.ShowStats {
		h.writeError(w, http.StatusForbidden, "stats are not enabled for this deployment", 0)
		return
	}

	byStatus, err := h.repo.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error("failed to compute stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to compute stats", 0)
		return
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}

	last24, err := h.repo.CountSince(r.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		h.logger.Error("failed to compute stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to compute stats", 0)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.Stats{Total: total, ByStatus: byStatus, Last24hrs: last24})
}

// adminConfig resolves the admin settings for the deployment's default tier.
// Resolution failure is an operator problem, reported as a 500.
func (h *FeedbackHandler) adminConfig(w http.ResponseWriter) (config.AdminSettings, bool) {
	cfg, err := config.Resolve(h.defaultTier, h.overrides)
	if err != nil {
		h.logger.Error("config resolution failed", "tier", h.defaultTier, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error", 0)
		return config.AdminSettings{}, false
	}
	return cfg.Admin, true
}

// writeError standardizes failure responses.
func (h *FeedbackHandler) writeError(w http.ResponseWriter, status int, message string, retryAfterMs int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error:        message,
		RetryAfterMs: retryAfterMs,
	})
}
