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

type AdHandler struct {
	service service.AdService
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func NewAdHandler(service service.AdService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *AdHandler {
	return &AdHandler{
		service: service,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/handler"),
	}
}

func (h *AdHandler) CreateAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateAd")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/ads", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var ad domain.Advertisement
	if err := json.NewDecoder(r.Body).Decode(&ad); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.service.CreateAd(ctx, user.ID, &ad)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	span.SetAttributes(attribute.String("ad.id", created.ID))
	utils.RespondWithJSON(w, http.StatusCreated, created)
}

func (h *AdHandler) GetAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetAd")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/ads/{id}", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("ad.id", id))

	ad, err := h.service.GetAd(ctx, user.ID, id)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ad)
}

func (h *AdHandler) GetUserAds(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetUserAds")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/ads", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ads, err := h.service.GetUserAds(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}
	if ads == nil {
		ads = []*domain.Advertisement{}
	}

	utils.RespondWithJSON(w, http.StatusOK, ads)
}

func (h *AdHandler) UpdateAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateAd")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("PUT", "/ads/{id}", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var ad domain.Advertisement
	if err := json.NewDecoder(r.Body).Decode(&ad); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ad.ID = chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("ad.id", ad.ID))

	updated, err := h.service.UpdateAd(ctx, user.ID, &ad)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, updated)
}

func (h *AdHandler) DeleteAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteAd")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("DELETE", "/ads/{id}", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("ad.id", id))

	if err := h.service.DeleteAd(ctx, user.ID, id); err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
