package service

import "errors"

// Sentinel errors returned by the service layer. Handlers map these onto
// HTTP status codes.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrForbidden        = errors.New("operation not permitted")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicateUser    = errors.New("email or username already registered")
	ErrInvalidLogin     = errors.New("incorrect email or password")
	ErrInactiveUser     = errors.New("user account is inactive")
	ErrDuplicateBilling = errors.New("billing data already exists for user")
	ErrInvalidSession   = errors.New("invalid or expired tracking session")
	ErrBotTraffic       = errors.New("bot traffic rejected")
	ErrDuplicateEvent   = errors.New("duplicate event within deduplication window")
	ErrUnknownDevice    = errors.New("unrecognized device type")
	ErrCampaignInactive = errors.New("campaign is not active")
	ErrWithdrawal       = errors.New("withdrawal not allowed")
)
