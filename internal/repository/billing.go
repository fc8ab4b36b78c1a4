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

type BillingRepository interface {
	CreateBilling(ctx context.Context, b *domain.BillingData) (*domain.BillingData, error)
	GetBillingByUser(ctx context.Context, userID string) (*domain.BillingData, error)
	UpdateBilling(ctx context.Context, b *domain.BillingData) (*domain.BillingData, error)
}

type mysqlBillingRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlBillingRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) BillingRepository {
	return &mysqlBillingRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/repository"),
	}
}

const billingColumns = "id, user_id, billing_address, tax_id, balance, currency"

func scanBilling(row interface{ Scan(...interface{}) error }) (*domain.BillingData, error) {
	var (
		b     domain.BillingData
		taxID sql.NullString
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.BillingAddress, &taxID, &b.Balance, &b.Currency); err != nil {
		return nil, err
	}
	b.TaxID = taxID.String
	return &b, nil
}

func (r *mysqlBillingRepository) CreateBilling(ctx context.Context, b *domain.BillingData) (*domain.BillingData, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateBilling")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("CreateBilling", status, start) }()

	b.ID = cuid.New()
	span.SetAttributes(attribute.String("billing.id", b.ID), attribute.String("user.id", b.UserID))

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO billing_datas (id, user_id, billing_address, tax_id, currency)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.BillingAddress, nullable(b.TaxID), b.Currency)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert billing data: %w", err)
	}

	inserted, err := scanBilling(r.db.QueryRowContext(ctx,
		"SELECT "+billingColumns+" FROM billing_datas WHERE id = ?", b.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch inserted billing data: %w", err)
	}

	return inserted, nil
}

func (r *mysqlBillingRepository) GetBillingByUser(ctx context.Context, userID string) (*domain.BillingData, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetBillingByUser")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetBillingByUser", status, start) }()

	b, err := scanBilling(r.db.QueryRowContext(ctx,
		"SELECT "+billingColumns+" FROM billing_datas WHERE user_id = ?", userID))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}
	return b, nil
}

func (r *mysqlBillingRepository) UpdateBilling(ctx context.Context, b *domain.BillingData) (*domain.BillingData, error) {
	ctx, span := r.tracer.Start(ctx, "Repository UpdateBilling")
	defer span.End()

	span.SetAttributes(attribute.String("billing.id", b.ID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("UpdateBilling", status, start) }()

	result, err := r.db.ExecContext(ctx, `
		UPDATE billing_datas
		SET billing_address = ?, tax_id = ?, currency = ?
		WHERE id = ?`,
		b.BillingAddress, nullable(b.TaxID), b.Currency, b.ID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update billing data: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve rows affected: %w", err)
	}
	if affected == 0 {
		status = "not_found"
		return nil, sql.ErrNoRows
	}

	updated, err := scanBilling(r.db.QueryRowContext(ctx,
		"SELECT "+billingColumns+" FROM billing_datas WHERE id = ?", b.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch updated billing data: %w", err)
	}

	return updated, nil
}
