package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
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

type PublisherHandler struct {
	service service.PublisherService
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func NewPublisherHandler(service service.PublisherService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *PublisherHandler {
	return &PublisherHandler{
		service: service,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/handler"),
	}
}

type publisherRequest struct {
	Platform domain.PublishingPlatform `json:"publishing_platform"`
}

// parseTimeParam accepts RFC 3339 timestamps and plain dates.
func parseTimeParam(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func (h *PublisherHandler) CreatePublisher(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreatePublisher")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/publishers", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req publisherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.service.CreatePublisher(ctx, user.ID, req.Platform)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	span.SetAttributes(attribute.String("publisher.id", created.ID))
	utils.RespondWithJSON(w, http.StatusCreated, created)
}

func (h *PublisherHandler) GetPublisher(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetPublisher")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/publishers/{id}", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("publisher.id", id))

	p, err := h.service.GetPublisher(ctx, user.ID, id)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, p)
}

func (h *PublisherHandler) GetUserPublishers(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetUserPublishers")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/publishers", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	query := r.URL.Query()
	skip, _ := strconv.Atoi(query.Get("skip"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	publishers, err := h.service.GetUserPublishers(ctx, user.ID, skip, limit)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}
	if publishers == nil {
		publishers = []*domain.Publisher{}
	}

	utils.RespondWithJSON(w, http.StatusOK, publishers)
}

func (h *PublisherHandler) UpdatePublisher(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdatePublisher")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("PUT", "/publishers/{id}", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req publisherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("publisher.id", id))

	updated, err := h.service.UpdatePublisher(ctx, user.ID, id, req.Platform)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, updated)
}

func (h *PublisherHandler) DeletePublisher(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeletePublisher")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("DELETE", "/publishers/{id}", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("publisher.id", id))

	if err := h.service.DeletePublisher(ctx, user.ID, id); err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PublisherHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetStats")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/publishers/{id}/stats", status, start) }()

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
		parsed, err := parseTimeParam(v)
		if err != nil {
			status = "invalid"
			utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid from parameter")
			return
		}
		from = parsed
	}
	if v := query.Get("to"); v != "" {
		parsed, err := parseTimeParam(v)
		if err != nil {
			status = "invalid"
			utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid to parameter")
			return
		}
		to = parsed
	}

	stats, err := h.service.GetStats(ctx, user.ID, id, from, to)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, stats)
}

func (h *PublisherHandler) GetRevenueSummary(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetRevenueSummary")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/publishers/{id}/revenue", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("publisher.id", id))

	summary, err := h.service.GetRevenueSummary(ctx, user.ID, id)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, summary)
}

func (h *PublisherHandler) GetPeriodicStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetPeriodicStats")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/publishers/{id}/stats/periodic", status, start) }()

	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	period := r.URL.Query().Get("period")
	span.SetAttributes(
		attribute.String("publisher.id", id),
		attribute.String("period", period),
	)

	stats, err := h.service.GetPeriodicStats(ctx, user.ID, id, period)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, stats)
}
