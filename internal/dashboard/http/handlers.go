package dashboardhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gymops/gymops/internal/attendance"
	"github.com/gymops/gymops/internal/calendar"
	"github.com/gymops/gymops/internal/platform/httpx"
	"github.com/gymops/gymops/internal/schedule"
	"github.com/gymops/gymops/internal/shared"
	"github.com/gymops/gymops/internal/stats"
)

const requestTimeout = 5 * time.Second

// DashboardService is the read/write contract the handler needs from dashboard.Service.
type DashboardService interface {
	ResolveDay(ctx context.Context, date string) (schedule.Resolution, error)
	ResolveRange(ctx context.Context, from, to string) ([]schedule.Resolution, error)
	Changes(ctx context.Context, date string) ([]schedule.ChangeRecord, error)
	AddSession(ctx context.Context, date string, in schedule.SessionInput) (schedule.Edit, error)
	ModifySession(ctx context.Context, date string, index int, in schedule.SessionInput) (schedule.Edit, error)
	DeleteSession(ctx context.Context, date string, index int, reason string) (schedule.Edit, error)
	RestoreDay(ctx context.Context, date, reason string) (schedule.Edit, error)
	Stats(ctx context.Context, center string) (stats.Report, error)
	Discrepancies(ctx context.Context, center string) ([]attendance.Discrepancy, error)
	MemberSummary(ctx context.Context, id string) (stats.Profile, error)
	CenterSummary(ctx context.Context, id string, year int) (calendar.Summary, error)
}

// RankingEnqueuer schedules an asynchronous ranking recompute and returns the task id.
type RankingEnqueuer interface {
	EnqueueRankingRecompute(ctx context.Context, requestedBy string) (string, error)
}

// Handler serves the dashboard JSON API.
type Handler struct {
	logger   *slog.Logger
	service  DashboardService
	rankings RankingEnqueuer
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler constructs the dashboard HTTP handler. rankings may be nil, in which case the
// recompute trigger answers 503.
func NewHandler(logger *slog.Logger, service DashboardService, rankings RankingEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		rankings: rankings,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type rangeQuery struct {
	From string `validate:"required,datetime=2006-01-02"`
	To   string `validate:"required,datetime=2006-01-02"`
}

type centerQuery struct {
	Center string `validate:"omitempty,max=64"`
}

type summaryQuery struct {
	Year int `validate:"gte=2000,lte=2100"`
}

type reasonBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type recomputeBody struct {
	RequestedBy string `json:"requestedBy" validate:"omitempty,max=128"`
}

type recomputeResponse struct {
	TaskID      string    `json:"taskId"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (h *Handler) handleDay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.service.ResolveDay(ctx, chi.URLParam(r, "date"))
	if err != nil {
		h.fail(w, "resolve day", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleRange(w http.ResponseWriter, r *http.Request) {
	q := rangeQuery{
		From: strings.TrimSpace(r.URL.Query().Get("from")),
		To:   strings.TrimSpace(r.URL.Query().Get("to")),
	}
	if err := h.validate.Struct(q); err != nil {
		h.invalid(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	days, err := h.service.ResolveRange(ctx, q.From, q.To)
	if err != nil {
		h.fail(w, "resolve range", err)
		return
	}
	httpx.JSON(w, http.StatusOK, days)
}

func (h *Handler) handleChanges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	changes, err := h.service.Changes(ctx, chi.URLParam(r, "date"))
	if err != nil {
		h.fail(w, "list changes", err)
		return
	}
	if changes == nil {
		changes = []schedule.ChangeRecord{}
	}
	httpx.JSON(w, http.StatusOK, changes)
}

func (h *Handler) handleAddSession(w http.ResponseWriter, r *http.Request) {
	var in schedule.SessionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	edit, err := h.service.AddSession(ctx, chi.URLParam(r, "date"), in)
	if err != nil {
		h.fail(w, "add session", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, edit.Change)
}

func (h *Handler) handleModifySession(w http.ResponseWriter, r *http.Request) {
	index, ok := h.sessionIndex(w, r)
	if !ok {
		return
	}
	var in schedule.SessionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	edit, err := h.service.ModifySession(ctx, chi.URLParam(r, "date"), index, in)
	if err != nil {
		h.fail(w, "modify session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, edit.Change)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	index, ok := h.sessionIndex(w, r)
	if !ok {
		return
	}
	body, ok := h.decodeReason(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	edit, err := h.service.DeleteSession(ctx, chi.URLParam(r, "date"), index, body.Reason)
	if err != nil {
		h.fail(w, "delete session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, edit.Change)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	body, ok := h.decodeReason(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	edit, err := h.service.RestoreDay(ctx, chi.URLParam(r, "date"), body.Reason)
	if err != nil {
		h.fail(w, "restore day", err)
		return
	}
	httpx.JSON(w, http.StatusOK, edit.Change)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	q := centerQuery{Center: strings.TrimSpace(r.URL.Query().Get("center"))}
	if err := h.validate.Struct(q); err != nil {
		h.invalid(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.Stats(ctx, q.Center)
	if err != nil {
		h.fail(w, "stats", err)
		return
	}
	body, err := json.Marshal(report)
	if err != nil {
		h.fail(w, "encode stats", err)
		return
	}
	etag := httpx.ETag(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, must-revalidate")
	if httpx.NotModified(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleDiscrepancies(w http.ResponseWriter, r *http.Request) {
	q := centerQuery{Center: strings.TrimSpace(r.URL.Query().Get("center"))}
	if err := h.validate.Struct(q); err != nil {
		h.invalid(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	list, err := h.service.Discrepancies(ctx, q.Center)
	if err != nil {
		h.fail(w, "discrepancies", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleMemberSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	profile, err := h.service.MemberSummary(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "member summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) handleCenterSummary(w http.ResponseWriter, r *http.Request) {
	q := summaryQuery{Year: h.now().Year()}
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "year must be numeric")
			return
		}
		q.Year = year
	}
	if err := h.validate.Struct(q); err != nil {
		h.invalid(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.CenterSummary(ctx, chi.URLParam(r, "id"), q.Year)
	if err != nil {
		h.fail(w, "center summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if h.rankings == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "ranking queue not configured")
		return
	}
	var body recomputeBody
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
			return
		}
	}
	if err := h.validate.Struct(body); err != nil {
		h.invalid(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id, err := h.rankings.EnqueueRankingRecompute(ctx, body.RequestedBy)
	if err != nil {
		h.fail(w, "enqueue ranking", err)
		return
	}
	h.logger.Info("ranking recompute enqueued", slog.String("task_id", id), slog.String("requested_by", body.RequestedBy))
	httpx.JSON(w, http.StatusAccepted, recomputeResponse{TaskID: id, RequestedAt: h.now().UTC()})
}

func (h *Handler) sessionIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "session index must be a non-negative integer")
		return 0, false
	}
	return index, true
}

func (h *Handler) decodeReason(w http.ResponseWriter, r *http.Request) (reasonBody, bool) {
	var body reasonBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return body, false
	}
	body.Reason = strings.TrimSpace(body.Reason)
	if err := h.validate.Struct(body); err != nil {
		h.invalid(w, err)
		return body, false
	}
	return body, true
}

func (h *Handler) invalid(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(parts, "; "))
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrInvalidInput) {
		h.logger.Error("dashboard request failed", slog.String("op", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
