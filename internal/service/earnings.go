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

// withdrawalHoldoff is how long after a month closes before its earnings
// can be withdrawn.
const withdrawalHoldoff = 7 * 24 * time.Hour

type EarningsService interface {
	GetMonthlyEarnings(ctx context.Context, userID, publisherID string, month time.Time) (*domain.PublisherEarnings, error)
	GetEarningsHistory(ctx context.Context, userID, publisherID string, from, to time.Time) ([]*domain.PublisherEarnings, error)
	RequestWithdrawal(ctx context.Context, userID, earningsID string) (*domain.PublisherEarnings, error)
	// ProcessWithdrawal approves or rejects a requested withdrawal.
	ProcessWithdrawal(ctx context.Context, earningsID string, approve bool, notes string) (*domain.PublisherEarnings, error)
	ListRequestedWithdrawals(ctx context.Context) ([]*domain.PublisherEarnings, error)
}

type earningsService struct {
	earnings   repository.EarningsRepository
	publishers repository.PublisherRepository
	pricing    *pricing.Manager
	metrics    *metrics.ServiceMetrics
	tracer     trace.Tracer
}

func NewEarningsService(
	earnings repository.EarningsRepository,
	publishers repository.PublisherRepository,
	pricing *pricing.Manager,
	metrics *metrics.ServiceMetrics,
) EarningsService {
	return &earningsService{
		earnings:   earnings,
		publishers: publishers,
		pricing:    pricing,
		metrics:    metrics,
		tracer:     otel.Tracer("adserver/service"),
	}
}

// MonthStart normalizes a time to midnight UTC on the first of its month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (s *earningsService) ownerCheck(ctx context.Context, userID, publisherID string) error {
	if _, err := s.publishers.GetUserPublisher(ctx, userID, publisherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *earningsService) GetMonthlyEarnings(ctx context.Context, userID, publisherID string, month time.Time) (*domain.PublisherEarnings, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetMonthlyEarnings")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", publisherID))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetMonthlyEarnings", status, start) }()

	if err := s.ownerCheck(ctx, userID, publisherID); err != nil {
		if errors.Is(err, ErrNotFound) {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}

	e, err := s.earnings.GetMonthlyEarnings(ctx, publisherID, MonthStart(month))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return e, nil
}

func (s *earningsService) GetEarningsHistory(ctx context.Context, userID, publisherID string, from, to time.Time) ([]*domain.PublisherEarnings, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetEarningsHistory")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", publisherID))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetEarningsHistory", status, start) }()

	if err := s.ownerCheck(ctx, userID, publisherID); err != nil {
		if errors.Is(err, ErrNotFound) {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}

	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(-1, 0, 0)
	}

	history, err := s.earnings.GetEarningsInRange(ctx, publisherID, MonthStart(from), MonthStart(to))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return history, nil
}

func (s *earningsService) RequestWithdrawal(ctx context.Context, userID, earningsID string) (*domain.PublisherEarnings, error) {
	ctx, span := s.tracer.Start(ctx, "Service RequestWithdrawal")
	defer span.End()

	span.SetAttributes(attribute.String("earnings.id", earningsID))

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("RequestWithdrawal", status, start) }()

	e, err := s.earnings.GetEarningsByID(ctx, earningsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	if err := s.ownerCheck(ctx, userID, e.PublisherID); err != nil {
		if errors.Is(err, ErrNotFound) {
			status = "forbidden"
			return nil, ErrForbidden
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	if e.WithdrawalStatus != domain.WithdrawalPending {
		status = "invalid"
		return nil, fmt.Errorf("%w: withdrawal already %s", ErrWithdrawal, e.WithdrawalStatus)
	}

	monthEnd := MonthStart(e.Month).AddDate(0, 1, 0)
	if time.Now().UTC().Before(monthEnd.Add(withdrawalHoldoff)) {
		status = "invalid"
		return nil, fmt.Errorf("%w: earnings can be withdrawn 7 days after the month closes", ErrWithdrawal)
	}

	if e.PublisherShare < s.pricing.MinimumPayout() {
		status = "invalid"
		return nil, fmt.Errorf("%w: publisher share %.2f is below the minimum payout %.2f",
			ErrWithdrawal, e.PublisherShare, s.pricing.MinimumPayout())
	}

	if err := s.earnings.MarkWithdrawalRequested(ctx, earningsID, time.Now().UTC()); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	updated, err := s.earnings.GetEarningsByID(ctx, earningsID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

func (s *earningsService) ProcessWithdrawal(ctx context.Context, earningsID string, approve bool, notes string) (*domain.PublisherEarnings, error) {
	ctx, span := s.tracer.Start(ctx, "Service ProcessWithdrawal")
	defer span.End()

	span.SetAttributes(
		attribute.String("earnings.id", earningsID),
		attribute.Bool("approve", approve),
	)

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("ProcessWithdrawal", status, start) }()

	e, err := s.earnings.GetEarningsByID(ctx, earningsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	if e.WithdrawalStatus != domain.WithdrawalRequested {
		status = "invalid"
		return nil, fmt.Errorf("%w: only requested withdrawals can be processed", ErrWithdrawal)
	}

	newStatus := domain.WithdrawalApproved
	if !approve {
		newStatus = domain.WithdrawalRejected
	}

	if err := s.earnings.MarkWithdrawalProcessed(ctx, earningsID, newStatus, notes, time.Now().UTC()); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	updated, err := s.earnings.GetEarningsByID(ctx, earningsID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

func (s *earningsService) ListRequestedWithdrawals(ctx context.Context) ([]*domain.PublisherEarnings, error) {
	ctx, span := s.tracer.Start(ctx, "Service ListRequestedWithdrawals")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("ListRequestedWithdrawals", status, start) }()

	withdrawals, err := s.earnings.GetRequestedWithdrawals(ctx)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return withdrawals, nil
}
