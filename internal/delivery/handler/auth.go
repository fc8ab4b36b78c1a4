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

type AuthHandler struct {
	service service.AuthService
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func NewAuthHandler(service service.AuthService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/handler"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *domain.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Register")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/auth/register", status, start) }()

	var input service.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.Register(ctx, input)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	utils.RespondWithJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Login")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("POST", "/auth/token", status, start) }()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = "invalid"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
		status = writeServiceError(w, h.logger, err)
		return
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	utils.RespondWithJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "Me")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { h.metrics.Observe("GET", "/users/me", status, start) }()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, user)
}
