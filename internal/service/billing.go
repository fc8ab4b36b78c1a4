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

type BillingService interface {
	// CreateBilling sets up billing data for a user. Each user may hold at
	// most one billing record.
	CreateBilling(ctx context.Context, userID string, b *domain.BillingData) (*domain.BillingData, error)
	GetBilling(ctx context.Context, userID string) (*domain.BillingData, error)
	UpdateBilling(ctx context.Context, userID string, b *domain.BillingData) (*domain.BillingData, error)
}

type billingService struct {
	billing repository.BillingRepository
	metrics *metrics.ServiceMetrics
	tracer  trace.Tracer
}

func NewBillingService(billing repository.BillingRepository, metrics *metrics.ServiceMetrics) BillingService {
	return &billingService{
		billing: billing,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/service"),
	}
}

func validateBilling(b *domain.BillingData) error {
	if b.BillingAddress == "" {
		return fmt.Errorf("%w: billing address is required", ErrInvalidInput)
	}
	if !allowedBudgetCurrencies[b.Currency] {
		return fmt.Errorf("%w: currency must be USD or SAR", ErrInvalidInput)
	}
	return nil
}

func (s *billingService) CreateBilling(ctx context.Context, userID string, b *domain.BillingData) (*domain.BillingData, error) {
	ctx, span := s.tracer.Start(ctx, "Service CreateBilling")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("CreateBilling", status, start) }()

	if err := validateBilling(b); err != nil {
		status = "invalid"
		return nil, err
	}

	if _, err := s.billing.GetBillingByUser(ctx, userID); err == nil {
		status = "duplicate"
		return nil, ErrDuplicateBilling
	} else if !errors.Is(err, sql.ErrNoRows) {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	b.UserID = userID
	created, err := s.billing.CreateBilling(ctx, b)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return created, nil
}

func (s *billingService) GetBilling(ctx context.Context, userID string) (*domain.BillingData, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetBilling")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetBilling", status, start) }()

	b, err := s.billing.GetBillingByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return b, nil
}

func (s *billingService) UpdateBilling(ctx context.Context, userID string, b *domain.BillingData) (*domain.BillingData, error) {
	ctx, span := s.tracer.Start(ctx, "Service UpdateBilling")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("UpdateBilling", status, start) }()

	existing, err := s.billing.GetBillingByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	// Partial update: only provided fields change.
	if b.BillingAddress != "" {
		existing.BillingAddress = b.BillingAddress
	}
	if b.TaxID != "" {
		existing.TaxID = b.TaxID
	}
	if b.Currency != "" {
		if !allowedBudgetCurrencies[b.Currency] {
			status = "invalid"
			return nil, fmt.Errorf("%w: currency must be USD or SAR", ErrInvalidInput)
		}
		existing.Currency = b.Currency
	}

	updated, err := s.billing.UpdateBilling(ctx, existing)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}
