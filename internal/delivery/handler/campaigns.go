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

type CampaignHandler struct {
	service service.CampaignService
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func NewCampaignHandler(service service.CampaignService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *CampaignHandler {
	return &CampaignHandler{
		service: service,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/handler"),
	}
}

type campaignStatusRequest struct {
	Status domain.CampaignStatus `json:"campaign_status"`
}

func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateCampaign")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/campaigns", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var campaign domain.Campaign
	if err := json.NewDecoder(r.Body).Decode(&campaign); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.service.CreateCampaign(ctx, user.ID, &campaign)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	span.SetAttributes(attribute.String("campaign.id", created.ID))
	utils.RespondWithJSON(w, http.StatusCreated, created)
}

func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetCampaign")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/campaigns/{id}", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("campaign.id", id))

	campaign, err := h.service.GetCampaign(ctx, user.ID, id)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) GetUserCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetUserCampaigns")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/campaigns", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	campaigns, err := h.service.GetUserCampaigns(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}
	if campaigns == nil {
		campaigns = []*domain.Campaign{}
	}

	utils.RespondWithJSON(w, http.StatusOK, campaigns)
}

func (h *CampaignHandler) UpdateCampaignStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateCampaignStatus")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("PATCH", "/campaigns/{id}/status", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req campaignStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(
		attribute.String("campaign.id", id),
		attribute.String("campaign.status", string(req.Status)),
	)

	campaign, err := h.service.UpdateCampaignStatus(ctx, user.ID, id, req.Status)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteCampaign")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("DELETE", "/campaigns/{id}", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("campaign.id", id))

	if err := h.service.DeleteCampaign(ctx, user.ID, id); err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
