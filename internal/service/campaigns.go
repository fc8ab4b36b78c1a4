package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"adserver/internal/domain"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxCampaignBudget   = 50.0
	maxStartLeadTime    = 60 * 24 * time.Hour
	minCampaignDuration = 30 * time.Minute
	maxCampaignDuration = 30 * 24 * time.Hour
)

var allowedBudgetCurrencies = map[string]bool{"USD": true, "SAR": true}

type CampaignService interface {
	CreateCampaign(ctx context.Context, userID string, c *domain.Campaign) (*domain.Campaign, error)
	GetCampaign(ctx context.Context, userID, id string) (*domain.Campaign, error)
	GetUserCampaigns(ctx context.Context, userID string) ([]*domain.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, userID, id string, status domain.CampaignStatus) (*domain.Campaign, error)
	DeleteCampaign(ctx context.Context, userID, id string) error
}

type campaignService struct {
	campaigns repository.CampaignRepository
	ads       repository.AdRepository
	billing   repository.BillingRepository
	metrics   *metrics.ServiceMetrics
	tracer    trace.Tracer
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	ads repository.AdRepository,
	billing repository.BillingRepository,
	metrics *metrics.ServiceMetrics,
) CampaignService {
	return &campaignService{
		campaigns: campaigns,
		ads:       ads,
		billing:   billing,
		metrics:   metrics,
		tracer:    otel.Tracer("adserver/service"),
	}
}

// validateCampaign enforces budget, currency and schedule rules before a
// campaign is persisted.
func (s *campaignService) validateCampaign(ctx context.Context, userID string, c *domain.Campaign) error {
	if c.Name == "" || c.AdvertisementID == "" {
		return fmt.Errorf("%w: name and advertisement_id are required", ErrInvalidInput)
	}

	if c.BudgetAmount <= 0 || c.BudgetAmount >= maxCampaignBudget {
		return fmt.Errorf("%w: budget must be greater than 0 and less than %.2f",
			ErrInvalidInput, maxCampaignBudget)
	}
	if !allowedBudgetCurrencies[c.BudgetCurrency] {
		return fmt.Errorf("%w: budget currency must be USD or SAR", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if c.StartDate.After(now.Add(maxStartLeadTime)) {
		return fmt.Errorf("%w: start date must be within 60 days", ErrInvalidInput)
	}
	duration := c.EndDate.Sub(c.StartDate)
	if duration < minCampaignDuration {
		return fmt.Errorf("%w: campaign must run for at least 30 minutes", ErrInvalidInput)
	}
	if duration > maxCampaignDuration {
		return fmt.Errorf("%w: campaign must not run for more than 30 days", ErrInvalidInput)
	}

	ad, err := s.ads.GetAdByID(ctx, c.AdvertisementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: advertisement not found", ErrInvalidInput)
		}
		return err
	}
	if ad.UserID != userID {
		return ErrForbidden
	}

	billing, err := s.billing.GetBillingByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: billing data must be set up before creating campaigns", ErrInvalidInput)
		}
		return err
	}
	if billing.Currency != c.BudgetCurrency {
		return fmt.Errorf("%w: budget currency must match billing currency %s",
			ErrInvalidInput, billing.Currency)
	}

	return nil
}

func (s *campaignService) CreateCampaign(ctx context.Context, userID string, c *domain.Campaign) (*domain.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "Service CreateCampaign")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("CreateCampaign", status, start) }()

	if err := s.validateCampaign(ctx, userID, c); err != nil {
		if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrForbidden) {
			status = "invalid"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}

	c.UserID = userID
	if c.Status == "" {
		c.Status = domain.CampaignStatusDraft
	}
	if !c.Status.Valid() {
		status = "invalid"
		return nil, fmt.Errorf("%w: unknown campaign status %q", ErrInvalidInput, c.Status)
	}

	created, err := s.campaigns.CreateCampaign(ctx, c)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("campaign.id", created.ID))
	return created, nil
}

func (s *campaignService) GetCampaign(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetCampaign")
	defer span.End()

	span.SetAttributes(attribute.String("campaign.id", id))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetCampaign", status, start) }()

	c, err := s.campaigns.GetUserCampaign(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return c, nil
}

func (s *campaignService) GetUserCampaigns(ctx context.Context, userID string) ([]*domain.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetUserCampaigns")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetUserCampaigns", status, start) }()

	campaigns, err := s.campaigns.GetUserCampaigns(ctx, userID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return campaigns, nil
}

func (s *campaignService) UpdateCampaignStatus(ctx context.Context, userID, id string, newStatus domain.CampaignStatus) (*domain.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "Service UpdateCampaignStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("campaign.id", id),
		attribute.String("campaign.status", string(newStatus)),
	)

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("UpdateCampaignStatus", status, start) }()

	if !newStatus.Valid() {
		status = "invalid"
		return nil, fmt.Errorf("%w: unknown campaign status %q", ErrInvalidInput, newStatus)
	}

	if err := s.campaigns.UpdateCampaignStatus(ctx, userID, id, newStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	c, err := s.campaigns.GetUserCampaign(ctx, userID, id)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return c, nil
}

func (s *campaignService) DeleteCampaign(ctx context.Context, userID, id string) error {
	ctx, span := s.tracer.Start(ctx, "Service DeleteCampaign")
	defer span.End()

	span.SetAttributes(attribute.String("campaign.id", id))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("DeleteCampaign", status, start) }()

	if err := s.campaigns.DeleteCampaign(ctx, userID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return err
	}
	return nil
}
