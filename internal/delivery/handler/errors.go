package handler

import (
	"errors"
	"net/http"

	"adserver/internal/service"
	"adserver/pkg/logger"
	"adserver/pkg/utils"
)

// writeServiceError maps service errors onto HTTP responses and returns
// the metric status label for the request.
func writeServiceError(w http.ResponseWriter, loggers *logger.Loggers, err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnknownDevice),
		errors.Is(err, service.ErrCampaignInactive),
		errors.Is(err, service.ErrWithdrawal):
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, err.Error())
		return "invalid"
	case errors.Is(err, service.ErrDuplicateUser),
		errors.Is(err, service.ErrDuplicateBilling):
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, err.Error())
		return "duplicate"
	case errors.Is(err, service.ErrInvalidLogin),
		errors.Is(err, service.ErrInvalidSession):
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, err.Error())
		return "unauthorized"
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrInactiveUser),
		errors.Is(err, service.ErrBotTraffic):
		utils.RespondWithErrorJSON(w, http.StatusForbidden, err.Error())
		return "forbidden"
	case errors.Is(err, service.ErrNotFound):
		utils.RespondWithErrorJSON(w, http.StatusNotFound, err.Error())
		return "not_found"
	case errors.Is(err, service.ErrDuplicateEvent):
		utils.RespondWithErrorJSON(w, http.StatusTooManyRequests, err.Error())
		return "duplicate"
	}

	loggers.ErrorLogger.Error("request failed", utils.Err(err))
	utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
	return "error"
}
