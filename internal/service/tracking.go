package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"adserver/internal/config"
	"adserver/internal/domain"
	"adserver/internal/infrastructure/geoip"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/pricing"
	"adserver/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mileusna/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// SessionCookieName carries the tracking session token between the
	// init and event endpoints.
	SessionCookieName = "ats_v1"

	sessionTokenTTL = time.Hour
	// Sessions outlive their token slightly so a token presented right at
	// expiry still matches a database row.
	sessionDBBuffer = time.Minute

	eventDedupeWindow = time.Hour
	blacklistTTL      = time.Hour
)

type InitSessionInput struct {
	PublisherID      string `json:"publisher_id"`
	ViewerIP         string `json:"-"`
	UserAgent        string `json:"-"`
	ScreenResolution string `json:"viewer_screen_resolution"`
	Language         string `json:"viewer_language"`
}

type TrackEventInput struct {
	Token       string           `json:"-"`
	PublisherID string           `json:"publisher_id"`
	CampaignID  string           `json:"campaign_id"`
	EventType   domain.EventType `json:"event_type"`
	ViewerIP    string           `json:"-"`
	UserAgent   string           `json:"-"`
	Timezone    string           `json:"viewer_timezone"`
}

// SessionGrant is the outcome of a successful session init.
type SessionGrant struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
}

type TrackingService interface {
	InitSession(ctx context.Context, input InitSessionInput) (*SessionGrant, error)
	TrackEvent(ctx context.Context, input TrackEventInput) (*domain.TrackingEvent, error)
	// CleanupBlacklist lifts blacklist entries older than one hour.
	CleanupBlacklist(ctx context.Context) (int64, error)
}

type trackingService struct {
	sessions   repository.SessionRepository
	events     repository.EventRepository
	campaigns  repository.CampaignRepository
	publishers repository.PublisherRepository
	earnings   repository.EarningsRepository
	audit      repository.SystemLogRepository
	pricing    *pricing.Manager
	geo        *geoip.Client
	auth       config.AuthConfig
	metrics    *metrics.ServiceMetrics
	tracer     trace.Tracer
}

func NewTrackingService(
	sessions repository.SessionRepository,
	events repository.EventRepository,
	campaigns repository.CampaignRepository,
	publishers repository.PublisherRepository,
	earnings repository.EarningsRepository,
	audit repository.SystemLogRepository,
	pricing *pricing.Manager,
	geo *geoip.Client,
	auth config.AuthConfig,
	metrics *metrics.ServiceMetrics,
) TrackingService {
	return &trackingService{
		sessions:   sessions,
		events:     events,
		campaigns:  campaigns,
		publishers: publishers,
		earnings:   earnings,
		audit:      audit,
		pricing:    pricing,
		geo:        geo,
		auth:       auth,
		metrics:    metrics,
		tracer:     otel.Tracer("adserver/service"),
	}
}

// deviceType buckets a parsed user agent into a pricing device class.
func deviceType(ua useragent.UserAgent) (string, error) {
	switch {
	case ua.Mobile:
		return "mobile", nil
	case ua.Tablet:
		return "tablet", nil
	case ua.Desktop:
		return "desktop", nil
	}
	return "", ErrUnknownDevice
}

// auditLog persists a system log entry. Audit failures never abort the
// operation being audited.
func (s *trackingService) auditLog(ctx context.Context, span trace.Span, entry *domain.SystemLog) {
	if err := s.audit.InsertLog(ctx, entry); err != nil {
		span.RecordError(err)
	}
}

func auditMetadata(fields map[string]string) json.RawMessage {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return raw
}

func (s *trackingService) InitSession(ctx context.Context, input InitSessionInput) (*SessionGrant, error) {
	ctx, span := s.tracer.Start(ctx, "Service InitSession")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", input.PublisherID))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("InitSession", status, start) }()

	if input.PublisherID == "" || input.ViewerIP == "" || input.UserAgent == "" {
		status = "invalid"
		return nil, fmt.Errorf("%w: publisher_id, viewer IP and user agent are required", ErrInvalidInput)
	}

	if _, err := s.publishers.GetPublisherByID(ctx, input.PublisherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	ua := useragent.Parse(input.UserAgent)
	if ua.Bot {
		status = "bot"
		s.auditLog(ctx, span, &domain.SystemLog{
			Level:     domain.LogWarning,
			Category:  domain.LogCategorySecurity,
			Message:   "bot user agent rejected at session init",
			IPAddress: input.ViewerIP,
			Metadata:  auditMetadata(map[string]string{"user_agent": input.UserAgent}),
		})
		return nil, ErrBotTraffic
	}

	now := time.Now().UTC()
	tokenExpiry := now.Add(sessionTokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   input.PublisherID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(tokenExpiry),
	})
	signed, err := token.SignedString([]byte(s.auth.Secret))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	session, err := s.sessions.CreateSession(ctx, &domain.TrackingSession{
		Token:            signed,
		ViewerIP:         input.ViewerIP,
		ViewerUserAgent:  input.UserAgent,
		ScreenResolution: input.ScreenResolution,
		Language:         input.Language,
		ExpiresAt:        tokenExpiry.Add(sessionDBBuffer),
		PublisherID:      input.PublisherID,
	})
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	return &SessionGrant{
		Token:     signed,
		ExpiresAt: tokenExpiry,
		SessionID: session.ID,
	}, nil
}

func (s *trackingService) TrackEvent(ctx context.Context, input TrackEventInput) (*domain.TrackingEvent, error) {
	ctx, span := s.tracer.Start(ctx, "Service TrackEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("publisher.id", input.PublisherID),
		attribute.String("campaign.id", input.CampaignID),
		attribute.String("event.type", string(input.EventType)),
	)

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("TrackEvent", status, start) }()

	if !input.EventType.Valid() {
		status = "invalid"
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, input.EventType)
	}
	if input.Token == "" {
		status = "invalid"
		return nil, ErrInvalidSession
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(input.Token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.auth.Secret), nil
	})
	if err != nil || !parsed.Valid || claims.Subject != input.PublisherID {
		status = "invalid"
		return nil, ErrInvalidSession
	}

	session, err := s.sessions.GetValidSession(ctx, input.Token, input.ViewerIP, input.UserAgent, input.PublisherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A token that verifies but matches no session row points at
			// replay from another client. Block further use of it.
			status = "invalid"
			if blErr := s.sessions.BlacklistSession(ctx, input.Token); blErr != nil {
				span.RecordError(blErr)
			}
			s.auditLog(ctx, span, &domain.SystemLog{
				Level:     domain.LogWarning,
				Category:  domain.LogCategorySecurity,
				Message:   "tracking session mismatch, token blacklisted",
				IPAddress: input.ViewerIP,
				Metadata:  auditMetadata(map[string]string{"publisher_id": input.PublisherID}),
			})
			return nil, ErrInvalidSession
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	ua := useragent.Parse(input.UserAgent)
	if ua.Bot {
		status = "bot"
		s.auditLog(ctx, span, &domain.SystemLog{
			Level:     domain.LogWarning,
			Category:  domain.LogCategorySecurity,
			Message:   "bot user agent rejected at event submission",
			IPAddress: input.ViewerIP,
			Metadata:  auditMetadata(map[string]string{"user_agent": input.UserAgent}),
		})
		return nil, ErrBotTraffic
	}

	device, err := deviceType(ua)
	if err != nil {
		status = "invalid"
		return nil, err
	}

	campaign, err := s.campaigns.GetCampaignByID(ctx, input.CampaignID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	if campaign.Status != domain.CampaignStatusActive {
		status = "invalid"
		return nil, ErrCampaignInactive
	}
	if campaign.BudgetUsed >= campaign.BudgetAmount {
		status = "invalid"
		return nil, ErrCampaignInactive
	}

	now := time.Now().UTC()
	duplicate, err := s.events.HasRecentEvent(ctx, input.ViewerIP, input.CampaignID,
		input.EventType, now.Add(-eventDedupeWindow))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	if duplicate {
		status = "duplicate"
		return nil, ErrDuplicateEvent
	}

	country := "Unknown"
	timezone := input.Timezone
	if info, err := s.geo.Lookup(ctx, input.ViewerIP); err == nil {
		country = info.Country
		if timezone == "" {
			timezone = info.Timezone
		}
	} else {
		span.RecordError(err)
	}

	revenue, err := s.pricing.CalculateRevenue(country, input.EventType, device)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	viewerDevice := ua.Device
	if viewerDevice == "" {
		viewerDevice = device
	}

	event, err := s.events.CreateEvent(ctx, &domain.TrackingEvent{
		EventType:         input.EventType,
		Timestamp:         now,
		CampaignID:        campaign.ID,
		AdID:              campaign.AdvertisementID,
		PublisherID:       input.PublisherID,
		SessionID:         session.ID,
		ViewerIP:          input.ViewerIP,
		ViewerCountry:     country,
		ViewerDevice:      viewerDevice,
		ViewerDeviceType:  device,
		ViewerOS:          ua.OS,
		ViewerBrowser:     ua.Name,
		ViewerLanguage:    session.Language,
		ViewerUserAgent:   input.UserAgent,
		ScreenResolution:  session.ScreenResolution,
		ViewerTimezone:    timezone,
		Earnings:          revenue.FinalRate,
		PublisherEarnings: revenue.PublisherShare,
		PlatformEarnings:  revenue.PlatformShare,
	})
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	if err := s.campaigns.IncreaseBudgetUsed(ctx, campaign.ID, revenue.FinalRate); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	if err := s.earnings.AddEventEarnings(ctx, input.PublisherID, MonthStart(now),
		input.EventType, revenue.FinalRate, revenue.PublisherShare, revenue.PlatformShare); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	if err := s.publishers.AddRevenue(ctx, input.PublisherID, revenue.PublisherShare); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	s.auditLog(ctx, span, &domain.SystemLog{
		Level:     domain.LogInfo,
		Category:  domain.LogCategoryRevenue,
		Message:   fmt.Sprintf("%s event priced at %.4f %s", input.EventType, revenue.FinalRate, revenue.Currency),
		IPAddress: input.ViewerIP,
		Metadata: auditMetadata(map[string]string{
			"event_id":     event.ID,
			"campaign_id":  campaign.ID,
			"publisher_id": input.PublisherID,
		}),
	})

	return event, nil
}

func (s *trackingService) CleanupBlacklist(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "Service CleanupBlacklist")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("CleanupBlacklist", status, start) }()

	cleaned, err := s.sessions.CleanupBlacklist(ctx, time.Now().UTC().Add(-blacklistTTL))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(attribute.Int64("sessions.cleaned", cleaned))
	return cleaned, nil
}
