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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type BillingHandler struct {
	service service.BillingService
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func NewBillingHandler(service service.BillingService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *BillingHandler {
	return &BillingHandler{
		service: service,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/handler"),
	}
}

func (h *BillingHandler) CreateBilling(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateBilling")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/billing", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var billing domain.BillingData
	if err := json.NewDecoder(r.Body).Decode(&billing); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.service.CreateBilling(ctx, user.ID, &billing)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	span.SetAttributes(attribute.String("billing.id", created.ID))
	utils.RespondWithJSON(w, http.StatusCreated, created)
}

func (h *BillingHandler) GetBilling(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetBilling")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/billing", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	billing, err := h.service.GetBilling(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, billing)
}

func (h *BillingHandler) UpdateBilling(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateBilling")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("PUT", "/billing", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var billing domain.BillingData
	if err := json.NewDecoder(r.Body).Decode(&billing); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.service.UpdateBilling(ctx, user.ID, &billing)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, updated)
}
