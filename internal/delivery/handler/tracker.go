package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"adserver/internal/delivery/middleware"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/service"
	"adserver/pkg/logger"
	"adserver/pkg/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TrackerHandler serves the public tracking endpoints. These are the only
// routes that do not require a user account; viewers authenticate with a
// short-lived session cookie instead.
type TrackerHandler struct {
	service service.TrackingService
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
	// secureCookie is off in debug so local tracking works over plain HTTP.
	secureCookie bool
}

func NewTrackerHandler(service service.TrackingService, logger *logger.Loggers, metrics *metrics.HandlerMetrics, debug bool) *TrackerHandler {
	return &TrackerHandler{
		service:      service,
		logger:       logger,
		metrics:      metrics,
		tracer:       otel.Tracer("adserver/handler"),
		secureCookie: !debug,
	}
}

type initSessionResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *TrackerHandler) InitSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "InitSession")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/track/init", status, start) }()

	var input service.InitSessionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input.ViewerIP = middleware.ClientIP(r)
	input.UserAgent = r.UserAgent()
	span.SetAttributes(attribute.String("publisher.id", input.PublisherID))

	grant, err := h.service.InitSession(ctx, input)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     service.SessionCookieName,
		Value:    grant.Token,
		Path:     "/",
		Expires:  grant.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
		Secure:   h.secureCookie,
	})

	utils.RespondWithJSON(w, http.StatusCreated, initSessionResponse{
		SessionID: grant.SessionID,
		ExpiresAt: grant.ExpiresAt,
	})
}

func (h *TrackerHandler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TrackEvent")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/track/event", status, start) }()

	var input service.TrackEventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cookie, err := r.Cookie(service.SessionCookieName)
	if err != nil {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "missing tracking session cookie")
		return
	}
	input.Token = cookie.Value
	input.ViewerIP = middleware.ClientIP(r)
	input.UserAgent = r.UserAgent()
	span.SetAttributes(
		attribute.String("publisher.id", input.PublisherID),
		attribute.String("campaign.id", input.CampaignID),
		attribute.String("event.type", string(input.EventType)),
	)

	event, err := h.service.TrackEvent(ctx, input)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, event)
}
