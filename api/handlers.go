/*
handlers.go - HTTP API handlers for the insights engine

PURPOSE:
  Exposes the ingestion engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to insights.Ingestor.

ENDPOINTS:
  Client (bearer token):
    POST   /api/records                 Submit the eligible period
    GET    /api/records?limit=12        Own history, most recent first
    GET    /api/achievements            Own unlocks
    GET    /api/achievements/catalog    Full catalog with unlocked flags
    GET    /api/clients/me              Snapshot, level, unlock count
    GET    /api/window                  Eligible period and lock countdown

  Admin (bearer token with is_admin):
    POST   /api/admin/records                    Backfill any period
    GET    /api/admin/records?client_id=         Client history
    POST   /api/admin/clients/{id}/reevaluate    Award anything missing
    GET    /api/admin/scenarios                  Demo scenarios
    POST   /api/admin/scenarios/load             Provision a demo scenario

  Public:
    GET    /api/health                  Database ping

ERROR HANDLING:
  Errors are returned as JSON {error, code, details}:
  - 400: validation_error, window_locked
  - 401/403: unauthorized, forbidden
  - 404: not_found
  - 409: duplicate_submission
  - 500: internal_error (details never leak)

SEE ALSO:
  - dto.go: Request/response data structures
  - session.go: Token verification
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/logger"
	"github.com/warp/insights-engine/store/sqlite"
)

const (
	defaultHistoryLimit = 12
	maxHistoryLimit     = 120
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ingestor *insights.Ingestor
	Store    *sqlite.Store
	log      *logger.Logger
}

func NewHandler(ingestor *insights.Ingestor, store *sqlite.Store, log *logger.Logger) *Handler {
	return &Handler{
		Ingestor: ingestor,
		Store:    store,
		log:      log.With("component", "api"),
	}
}

// =============================================================================
// RECORD ENDPOINTS
// =============================================================================

// SubmitRecord stores the caller's record for the eligible period.
func (h *Handler) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())

	var req SubmitRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body", err.Error())
		return
	}

	input := insights.SubmitInput{
		ClientID:  s.ClientID,
		Revenue:   req.Revenue,
		UnitCount: req.UnitCount,
		Notes:     req.Notes,
		Highlight: req.Highlight,
	}
	switch {
	case req.Month != nil && req.Year != nil:
		p := insights.NewPeriod(*req.Year, time.Month(*req.Month))
		input.Period = &p
	case req.Month != nil || req.Year != nil:
		h.writeDomainError(w, r, &insights.ValidationError{Field: "period", Message: "month and year must be given together"})
		return
	}

	outcome, err := h.Ingestor.Submit(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmitResponse(outcome))
}

// ListRecords returns the caller's own history.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	records, err := h.Store.RecentHistory(r.Context(), s.ClientID, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// GetWindow reports which period can be submitted and for how long.
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	ws := h.Ingestor.Window()
	writeJSON(w, http.StatusOK, WindowDTO{
		Year:          ws.Period.Year,
		Month:         int(ws.Period.Month),
		Label:         ws.Period.Label(),
		Open:          ws.Open,
		DaysUntilLock: ws.DaysUntilLock,
	})
}

// =============================================================================
// ACHIEVEMENT ENDPOINTS
// =============================================================================

// ListAchievements returns the caller's unlocks, newest first.
func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())

	unlocks, err := h.Store.Unlocks(r.Context(), s.ClientID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]AchievementDTO, 0, len(unlocks))
	for _, u := range unlocks {
		def, err := insights.Lookup(u.Code)
		if err != nil {
			h.log.Warn("unlock references unknown achievement", "client_id", s.ClientID, "code", u.Code)
			continue
		}
		dto := toAchievementDTO(def)
		dto.UnlockedAt = u.UnlockedAt.UTC().Format(time.RFC3339)
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCatalog returns every achievement with the caller's unlocked flag.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())

	held, err := h.Store.UnlockedCodes(r.Context(), s.ClientID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]AchievementDTO, 0, len(insights.Catalog))
	for _, def := range insights.Catalog {
		dto := toAchievementDTO(def)
		unlocked := held[def.Code]
		dto.Unlocked = &unlocked
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// CLIENT ENDPOINTS
// =============================================================================

// GetMe returns the caller's snapshot with derived level.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	ctx := r.Context()

	client, err := h.Store.GetClient(ctx, s.ClientID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	held, err := h.Store.UnlockedCodes(ctx, s.ClientID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dto := ClientDTO{
		ID:               string(client.ID),
		Name:             client.Name,
		CompanyName:      client.CompanyName,
		Phone:            client.Phone,
		Email:            client.Email,
		Segment:          client.Segment,
		TotalPoints:      client.TotalPoints,
		MonthlyGoal:      toFloat(client.MonthlyGoal),
		Level:            insights.LevelFor(client.TotalPoints),
		AchievementCount: len(held),
		IsAdmin:          s.IsAdmin,
	}
	if next, ok := insights.NextLevel(client.TotalPoints); ok {
		dto.NextLevel = &next
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// BackfillRecord stores a record for any period. No window, no awards.
func (h *Handler) BackfillRecord(w http.ResponseWriter, r *http.Request) {
	var req BackfillRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body", err.Error())
		return
	}
	if req.ClientID == "" {
		h.writeDomainError(w, r, &insights.ValidationError{Field: "client_id", Message: "is required"})
		return
	}

	rec, err := h.Ingestor.Backfill(r.Context(), insights.BackfillInput{
		ClientID:   insights.ClientID(req.ClientID),
		Period:     insights.NewPeriod(req.Year, time.Month(req.Month)),
		Revenue:    req.Revenue,
		UnitCount:  req.UnitCount,
		Notes:      req.Notes,
		Investment: req.Investment,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

// AdminListRecords returns any client's full history.
func (h *Handler) AdminListRecords(w http.ResponseWriter, r *http.Request) {
	clientID := insights.ClientID(r.URL.Query().Get("client_id"))
	if clientID == "" {
		h.writeDomainError(w, r, &insights.ValidationError{Field: "client_id", Message: "is required"})
		return
	}
	if _, err := h.Store.GetClient(r.Context(), clientID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	records, err := h.Store.History(r.Context(), clientID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// ReevaluateClient re-runs the rules for the client's latest record.
func (h *Handler) ReevaluateClient(w http.ResponseWriter, r *http.Request) {
	clientID := insights.ClientID(chi.URLParam(r, "id"))

	outcome, err := h.Ingestor.Reevaluate(r.Context(), clientID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReevaluateResponse{
		ClientID:      string(clientID),
		Achievements:  toAchievementDTOs(outcome.Unlocked),
		PointsAwarded: outcome.PointsAwarded,
		TotalPoints:   outcome.Client.TotalPoints,
	})
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Time: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if err := h.Store.Ping(ctx); err != nil {
		h.log.Error("health check failed", "error", err)
		resp.Status, resp.Database = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &insights.ValidationError{Field: "limit", Message: "must be a positive integer"}
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}

// writeDomainError maps engine errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *insights.ValidationError
		locked *insights.IneligibleWindowError
		dup    *insights.DuplicateSubmissionError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_error", verr.Error(), map[string]string{"field": verr.Field})
	case errors.As(err, &locked):
		writeError(w, http.StatusBadRequest, "window_locked", "This period cannot be submitted", map[string]string{
			"period": locked.Period.String(),
			"reason": locked.Reason,
		})
	case errors.As(err, &dup):
		writeError(w, http.StatusConflict, "duplicate_submission", "A record for this period already exists", map[string]string{
			"period": dup.Period.String(),
		})
	case insights.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}
