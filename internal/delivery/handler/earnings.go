package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"adserver/internal/delivery/middleware"
	"adserver/internal/domain"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/service"
	"adserver/pkg/logger"
	"adserver/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type EarningsHandler struct {
	service service.EarningsService
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func NewEarningsHandler(service service.EarningsService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *EarningsHandler {
	return &EarningsHandler{
		service: service,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/handler"),
	}
}

type processWithdrawalRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

func (h *EarningsHandler) GetMonthlyEarnings(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetMonthlyEarnings")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/publishers/{id}/earnings", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("publisher.id", id))

	month := time.Now().UTC()
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := time.Parse("2006-01", v)
		if err != nil {
			status = "invalid"
			utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid month parameter, expected YYYY-MM")
			return
		}
		month = parsed
	}

	earnings, err := h.service.GetMonthlyEarnings(ctx, user.ID, id, month)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, earnings)
}

func (h *EarningsHandler) GetEarningsHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetEarningsHistory")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/publishers/{id}/earnings/history", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("publisher.id", id))

	query := r.URL.Query()
	var from, to time.Time
	if v := query.Get("from"); v != "" {
		parsed, err := time.Parse("2006-01", v)
		if err != nil {
			status = "invalid"
			utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid from parameter, expected YYYY-MM")
			return
		}
		from = parsed
	}
	if v := query.Get("to"); v != "" {
		parsed, err := time.Parse("2006-01", v)
		if err != nil {
			status = "invalid"
			utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid to parameter, expected YYYY-MM")
			return
		}
		to = parsed
	}

	history, err := h.service.GetEarningsHistory(ctx, user.ID, id, from, to)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}
	if history == nil {
		history = []*domain.PublisherEarnings{}
	}

	utils.RespondWithJSON(w, http.StatusOK, history)
}

func (h *EarningsHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RequestWithdrawal")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/earnings/{id}/withdraw", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("earnings.id", id))

	earnings, err := h.service.RequestWithdrawal(ctx, user.ID, id)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, earnings)
}

func (h *EarningsHandler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ProcessWithdrawal")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/earnings/{id}/process", status, start) }()

	var req processWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(
		attribute.String("earnings.id", id),
		attribute.Bool("approve", req.Approve),
	)

	earnings, err := h.service.ProcessWithdrawal(ctx, id, req.Approve, req.Notes)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, earnings)
}

func (h *EarningsHandler) ListRequestedWithdrawals(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListRequestedWithdrawals")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/earnings/withdrawals", status, start) }()

	withdrawals, err := h.service.ListRequestedWithdrawals(ctx)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}
	if withdrawals == nil {
		withdrawals = []*domain.PublisherEarnings{}
	}

	utils.RespondWithJSON(w, http.StatusOK, withdrawals)
}
