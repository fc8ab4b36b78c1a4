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

type AdService interface {
	CreateAd(ctx context.Context, userID string, ad *domain.Advertisement) (*domain.Advertisement, error)
	GetAd(ctx context.Context, userID, id string) (*domain.Advertisement, error)
	GetUserAds(ctx context.Context, userID string) ([]*domain.Advertisement, error)
	UpdateAd(ctx context.Context, userID string, ad *domain.Advertisement) (*domain.Advertisement, error)
	DeleteAd(ctx context.Context, userID, id string) error
}

type adService struct {
	ads     repository.AdRepository
	metrics *metrics.ServiceMetrics
	tracer  trace.Tracer
}

func NewAdService(ads repository.AdRepository, metrics *metrics.ServiceMetrics) AdService {
	return &adService{
		ads:     ads,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/service"),
	}
}

func validateAd(ad *domain.Advertisement) error {
	if ad.Title == "" || ad.Description == "" || ad.Media == "" || ad.TargetAudience == "" {
		return fmt.Errorf("%w: title, description, media and target audience are required", ErrInvalidInput)
	}
	return nil
}

func (s *adService) CreateAd(ctx context.Context, userID string, ad *domain.Advertisement) (*domain.Advertisement, error) {
	ctx, span := s.tracer.Start(ctx, "Service CreateAd")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("CreateAd", status, start) }()

	if err := validateAd(ad); err != nil {
		status = "invalid"
		return nil, err
	}

	ad.UserID = userID
	created, err := s.ads.CreateAd(ctx, ad)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("ad.id", created.ID))
	return created, nil
}

func (s *adService) GetAd(ctx context.Context, userID, id string) (*domain.Advertisement, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetAd")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", id))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetAd", status, start) }()

	ad, err := s.ads.GetAdByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	if ad.UserID != userID {
		status = "forbidden"
		return nil, ErrForbidden
	}
	return ad, nil
}

func (s *adService) GetUserAds(ctx context.Context, userID string) ([]*domain.Advertisement, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetUserAds")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetUserAds", status, start) }()

	ads, err := s.ads.GetUserAds(ctx, userID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return ads, nil
}

func (s *adService) UpdateAd(ctx context.Context, userID string, ad *domain.Advertisement) (*domain.Advertisement, error) {
	ctx, span := s.tracer.Start(ctx, "Service UpdateAd")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", ad.ID))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("UpdateAd", status, start) }()

	existing, err := s.ads.GetAdByID(ctx, ad.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	if existing.UserID != userID {
		status = "not_found"
		return nil, ErrNotFound
	}

	// Partial update: only provided fields change.
	if ad.Title != "" {
		existing.Title = ad.Title
	}
	if ad.Description != "" {
		existing.Description = ad.Description
	}
	if ad.Media != "" {
		existing.Media = ad.Media
	}
	if ad.TargetAudience != "" {
		existing.TargetAudience = ad.TargetAudience
	}

	updated, err := s.ads.UpdateAd(ctx, existing)
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

func (s *adService) DeleteAd(ctx context.Context, userID, id string) error {
	ctx, span := s.tracer.Start(ctx, "Service DeleteAd")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", id))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("DeleteAd", status, start) }()

	if err := s.ads.DeleteAd(ctx, userID, id); err != nil {
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
