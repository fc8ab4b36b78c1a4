package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"adserver/internal/domain"
	"adserver/internal/infrastructure/metrics"
	"adserver/pkg/cuid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type EarningsRepository interface {
	// AddEventEarnings upserts the publisher's monthly row, incrementing the
	// counter matching eventType and the revenue shares.
	AddEventEarnings(ctx context.Context, publisherID string, month time.Time, eventType domain.EventType, gross, publisherShare, platformShare float64) error
	GetMonthlyEarnings(ctx context.Context, publisherID string, month time.Time) (*domain.PublisherEarnings, error)
	GetEarningsByID(ctx context.Context, id string) (*domain.PublisherEarnings, error)
	GetEarningsInRange(ctx context.Context, publisherID string, from, to time.Time) ([]*domain.PublisherEarnings, error)
	GetRequestedWithdrawals(ctx context.Context) ([]*domain.PublisherEarnings, error)
	MarkWithdrawalRequested(ctx context.Context, id string, at time.Time) error
	MarkWithdrawalProcessed(ctx context.Context, id string, status domain.WithdrawalStatus, notes string, at time.Time) error
}

type mysqlEarningsRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlEarningsRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) EarningsRepository {
	return &mysqlEarningsRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/repository"),
	}
}

const earningsColumns = `id, publisher_id, month, total_views, total_clicks, total_impressions,
	gross_revenue, publisher_share, platform_share, withdrawal_status, withdrawal_requested_at,
	withdrawal_processed_at, withdrawal_notes, is_paid, created_at, paid_at`

func scanEarnings(row interface{ Scan(...interface{}) error }) (*domain.PublisherEarnings, error) {
	var (
		e           domain.PublisherEarnings
		requestedAt sql.NullTime
		processedAt sql.NullTime
		notes       sql.NullString
		paidAt      sql.NullTime
	)
	err := row.Scan(&e.ID, &e.PublisherID, &e.Month, &e.TotalViews, &e.TotalClicks,
		&e.TotalImpressions, &e.GrossRevenue, &e.PublisherShare, &e.PlatformShare,
		&e.WithdrawalStatus, &requestedAt, &processedAt, &notes, &e.IsPaid, &e.CreatedAt, &paidAt)
	if err != nil {
		return nil, err
	}
	if requestedAt.Valid {
		e.WithdrawalRequestedAt = &requestedAt.Time
	}
	if processedAt.Valid {
		e.WithdrawalProcessedAt = &processedAt.Time
	}
	e.WithdrawalNotes = notes.String
	if paidAt.Valid {
		e.PaidAt = &paidAt.Time
	}
	return &e, nil
}

// counterColumn maps an event type to its monthly counter.
func counterColumn(eventType domain.EventType) (string, error) {
	switch eventType {
	case domain.EventView:
		return "total_views", nil
	case domain.EventClick:
		return "total_clicks", nil
	case domain.EventImpression:
		return "total_impressions", nil
	}
	return "", fmt.Errorf("unknown event type %q", eventType)
}

func (r *mysqlEarningsRepository) AddEventEarnings(ctx context.Context, publisherID string, month time.Time, eventType domain.EventType, gross, publisherShare, platformShare float64) error {
	ctx, span := r.tracer.Start(ctx, "Repository AddEventEarnings")
	defer span.End()

	span.SetAttributes(
		attribute.String("publisher.id", publisherID),
		attribute.String("event.type", string(eventType)),
	)

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("AddEventEarnings", status, start) }()

	column, err := counterColumn(eventType)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO publisher_earnings
			(id, publisher_id, month, %[1]s, gross_revenue, publisher_share, platform_share)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			%[1]s = %[1]s + 1,
			gross_revenue = gross_revenue + VALUES(gross_revenue),
			publisher_share = publisher_share + VALUES(publisher_share),
			platform_share = platform_share + VALUES(platform_share)`, column)

	_, err = r.db.ExecContext(ctx, query,
		cuid.New(), publisherID, month, gross, publisherShare, platformShare)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to upsert monthly earnings: %w", err)
	}
	return nil
}

func (r *mysqlEarningsRepository) GetMonthlyEarnings(ctx context.Context, publisherID string, month time.Time) (*domain.PublisherEarnings, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetMonthlyEarnings")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", publisherID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetMonthlyEarnings", status, start) }()

	e, err := scanEarnings(r.db.QueryRowContext(ctx,
		"SELECT "+earningsColumns+" FROM publisher_earnings WHERE publisher_id = ? AND month = ?",
		publisherID, month))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}
	return e, nil
}

func (r *mysqlEarningsRepository) GetEarningsByID(ctx context.Context, id string) (*domain.PublisherEarnings, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetEarningsByID")
	defer span.End()

	span.SetAttributes(attribute.String("earnings.id", id))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetEarningsByID", status, start) }()

	e, err := scanEarnings(r.db.QueryRowContext(ctx,
		"SELECT "+earningsColumns+" FROM publisher_earnings WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}
	return e, nil
}

func (r *mysqlEarningsRepository) GetEarningsInRange(ctx context.Context, publisherID string, from, to time.Time) ([]*domain.PublisherEarnings, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetEarningsInRange")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", publisherID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetEarningsInRange", status, start) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+earningsColumns+`
		FROM publisher_earnings
		WHERE publisher_id = ? AND month BETWEEN ? AND ?
		ORDER BY month`,
		publisherID, from, to)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve earnings: %w", err)
	}
	defer rows.Close()

	var earnings []*domain.PublisherEarnings
	for rows.Next() {
		e, err := scanEarnings(rows)
		if err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan earnings: %w", err)
		}
		earnings = append(earnings, e)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return earnings, nil
}

func (r *mysqlEarningsRepository) GetRequestedWithdrawals(ctx context.Context) ([]*domain.PublisherEarnings, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetRequestedWithdrawals")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetRequestedWithdrawals", status, start) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+earningsColumns+`
		FROM publisher_earnings
		WHERE withdrawal_status = ?
		ORDER BY withdrawal_requested_at`,
		domain.WithdrawalRequested)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve requested withdrawals: %w", err)
	}
	defer rows.Close()

	var earnings []*domain.PublisherEarnings
	for rows.Next() {
		e, err := scanEarnings(rows)
		if err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan earnings: %w", err)
		}
		earnings = append(earnings, e)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return earnings, nil
}

func (r *mysqlEarningsRepository) MarkWithdrawalRequested(ctx context.Context, id string, at time.Time) error {
	ctx, span := r.tracer.Start(ctx, "Repository MarkWithdrawalRequested")
	defer span.End()

	span.SetAttributes(attribute.String("earnings.id", id))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("MarkWithdrawalRequested", status, start) }()

	result, err := r.db.ExecContext(ctx, `
		UPDATE publisher_earnings
		SET withdrawal_status = ?, withdrawal_requested_at = ?
		WHERE id = ?`,
		domain.WithdrawalRequested, at, id)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to mark withdrawal requested: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if affected == 0 {
		status = "not_found"
		return sql.ErrNoRows
	}
	return nil
}

func (r *mysqlEarningsRepository) MarkWithdrawalProcessed(ctx context.Context, id string, newStatus domain.WithdrawalStatus, notes string, at time.Time) error {
	ctx, span := r.tracer.Start(ctx, "Repository MarkWithdrawalProcessed")
	defer span.End()

	span.SetAttributes(
		attribute.String("earnings.id", id),
		attribute.String("withdrawal.status", string(newStatus)),
	)

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("MarkWithdrawalProcessed", status, start) }()

	result, err := r.db.ExecContext(ctx, `
		UPDATE publisher_earnings
		SET withdrawal_status = ?, withdrawal_notes = ?, withdrawal_processed_at = ?
		WHERE id = ?`,
		newStatus, nullable(notes), at, id)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to mark withdrawal processed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if affected == 0 {
		status = "not_found"
		return sql.ErrNoRows
	}
	return nil
}
