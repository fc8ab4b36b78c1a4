package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"adserver/internal/domain"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/pricing"
	"adserver/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPublisherPageSize = 20
	maxPublisherPageSize     = 100
	trendDays                = 30
)

// PublisherStats is the full analytics breakdown for one publisher over a
// reporting window.
type PublisherStats struct {
	PublisherID  string                       `json:"publisher_id"`
	From         time.Time                    `json:"from"`
	To           time.Time                    `json:"to"`
	Interactions []repository.InteractionStat `json:"interactions"`
	Countries    []repository.CountryStat     `json:"countries"`
	Devices      []repository.DeviceStat      `json:"devices"`
	DailyTrend   []repository.DailyStat       `json:"daily_trend"`
	// CTR is clicks over impressions for the window, 0 when no impressions.
	CTR float64 `json:"ctr"`
}

// RevenueSummary reports a publisher's accumulated revenue alongside the
// payout terms currently in force.
type RevenueSummary struct {
	PublisherID     string  `json:"publisher_id"`
	Revenue         float64 `json:"revenue"`
	MinimumPayout   float64 `json:"minimum_payout"`
	PaymentSchedule string  `json:"payment_schedule"`
	PayoutEligible  bool    `json:"payout_eligible"`
}

type PublisherService interface {
	CreatePublisher(ctx context.Context, userID string, platform domain.PublishingPlatform) (*domain.Publisher, error)
	GetPublisher(ctx context.Context, userID, id string) (*domain.Publisher, error)
	GetUserPublishers(ctx context.Context, userID string, skip, limit int) ([]*domain.Publisher, error)
	UpdatePublisher(ctx context.Context, userID, id string, platform domain.PublishingPlatform) (*domain.Publisher, error)
	DeletePublisher(ctx context.Context, userID, id string) error
	GetStats(ctx context.Context, userID, id string, from, to time.Time) (*PublisherStats, error)
	GetRevenueSummary(ctx context.Context, userID, id string) (*RevenueSummary, error)
	// GetPeriodicStats reports interaction stats for the current calendar
	// window named by period, either "daily" or "weekly".
	GetPeriodicStats(ctx context.Context, userID, id, period string) (*PublisherStats, error)
}

type publisherService struct {
	publishers repository.PublisherRepository
	events     repository.EventRepository
	pricing    *pricing.Manager
	metrics    *metrics.ServiceMetrics
	tracer     trace.Tracer
}

func NewPublisherService(
	publishers repository.PublisherRepository,
	events repository.EventRepository,
	pricing *pricing.Manager,
	metrics *metrics.ServiceMetrics,
) PublisherService {
	return &publisherService{
		publishers: publishers,
		events:     events,
		pricing:    pricing,
		metrics:    metrics,
		tracer:     otel.Tracer("adserver/service"),
	}
}

func (s *publisherService) CreatePublisher(ctx context.Context, userID string, platform domain.PublishingPlatform) (*domain.Publisher, error) {
	ctx, span := s.tracer.Start(ctx, "Service CreatePublisher")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("CreatePublisher", status, start) }()

	if !platform.Valid() {
		status = "invalid"
		return nil, fmt.Errorf("%w: unknown publishing platform %q", ErrInvalidInput, platform)
	}

	created, err := s.publishers.CreatePublisher(ctx, &domain.Publisher{
		Platform: platform,
		UserID:   userID,
	})
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("publisher.id", created.ID))
	return created, nil
}

func (s *publisherService) GetPublisher(ctx context.Context, userID, id string) (*domain.Publisher, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetPublisher")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", id))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetPublisher", status, start) }()

	p, err := s.publishers.GetUserPublisher(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

func (s *publisherService) GetUserPublishers(ctx context.Context, userID string, skip, limit int) ([]*domain.Publisher, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetUserPublishers")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetUserPublishers", status, start) }()

	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPublisherPageSize
	}
	if limit > maxPublisherPageSize {
		limit = maxPublisherPageSize
	}

	publishers, err := s.publishers.GetUserPublishers(ctx, userID, skip, limit)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return publishers, nil
}

func (s *publisherService) UpdatePublisher(ctx context.Context, userID, id string, platform domain.PublishingPlatform) (*domain.Publisher, error) {
	ctx, span := s.tracer.Start(ctx, "Service UpdatePublisher")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", id))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("UpdatePublisher", status, start) }()

	if !platform.Valid() {
		status = "invalid"
		return nil, fmt.Errorf("%w: unknown publishing platform %q", ErrInvalidInput, platform)
	}

	updated, err := s.publishers.UpdatePublisher(ctx, &domain.Publisher{
		ID:       id,
		UserID:   userID,
		Platform: platform,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

func (s *publisherService) DeletePublisher(ctx context.Context, userID, id string) error {
	ctx, span := s.tracer.Start(ctx, "Service DeletePublisher")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", id))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("DeletePublisher", status, start) }()

	if err := s.publishers.DeletePublisher(ctx, userID, id); err != nil {
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

func (s *publisherService) GetStats(ctx context.Context, userID, id string, from, to time.Time) (*PublisherStats, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetStats")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", id))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetStats", status, start) }()

	if _, err := s.publishers.GetUserPublisher(ctx, userID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	if from.After(to) {
		status = "invalid"
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidInput)
	}

	interactions, err := s.events.InteractionStats(ctx, id, from, to)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	countries, err := s.events.CountryStats(ctx, id, from, to)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	devices, err := s.events.DeviceStats(ctx, id, from, to)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	trend, err := s.events.DailyTrend(ctx, id, trendDays)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	var clicks, impressions int64
	for _, it := range interactions {
		switch it.EventType {
		case domain.EventClick:
			clicks = it.Count
		case domain.EventImpression:
			impressions = it.Count
		}
	}
	var ctr float64
	if impressions > 0 {
		ctr = float64(clicks) / float64(impressions)
	}

	return &PublisherStats{
		PublisherID:  id,
		From:         from,
		To:           to,
		Interactions: interactions,
		Countries:    countries,
		Devices:      devices,
		DailyTrend:   trend,
		CTR:          ctr,
	}, nil
}

func (s *publisherService) GetRevenueSummary(ctx context.Context, userID, id string) (*RevenueSummary, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetRevenueSummary")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", id))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetRevenueSummary", status, start) }()

	p, err := s.publishers.GetUserPublisher(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	minPayout := s.pricing.MinimumPayout()
	return &RevenueSummary{
		PublisherID:     p.ID,
		Revenue:         p.Revenue,
		MinimumPayout:   minPayout,
		PaymentSchedule: s.pricing.PaymentSchedule(),
		PayoutEligible:  p.Revenue >= minPayout,
	}, nil
}

func (s *publisherService) GetPeriodicStats(ctx context.Context, userID, id, period string) (*PublisherStats, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetPeriodicStats")
	defer span.End()

	span.SetAttributes(
		attribute.String("publisher.id", id),
		attribute.String("period", period),
	)

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetPeriodicStats", status, start) }()

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var from time.Time
	switch period {
	case "", "daily":
		from = dayStart
	case "weekly":
		// ISO week, starting Monday.
		from = dayStart.AddDate(0, 0, -((int(dayStart.Weekday()) + 6) % 7))
	default:
		status = "invalid"
		return nil, fmt.Errorf("%w: period must be daily or weekly", ErrInvalidInput)
	}

	stats, err := s.GetStats(ctx, userID, id, from, now)
	if err != nil {
		status = "error"
		return nil, err
	}
	return stats, nil
}
