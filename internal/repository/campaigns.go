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

type CampaignRepository interface {
	CreateCampaign(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error)
	GetCampaignByID(ctx context.Context, id string) (*domain.Campaign, error)
	GetUserCampaign(ctx context.Context, userID, id string) (*domain.Campaign, error)
	GetUserCampaigns(ctx context.Context, userID string) ([]*domain.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, userID, id string, status domain.CampaignStatus) error
	DeleteCampaign(ctx context.Context, userID, id string) error
	IncreaseBudgetUsed(ctx context.Context, id string, amount float64) error
}

type mysqlCampaignRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlCampaignRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) CampaignRepository {
	return &mysqlCampaignRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/repository"),
	}
}

const campaignColumns = `id, name, description, campaign_start_date, campaign_end_date,
	budget_allocation_amount, budget_allocation_currency, budget_used, campaign_status,
	advertisement_id, user_id, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.StartDate, &c.EndDate,
		&c.BudgetAmount, &c.BudgetCurrency, &c.BudgetUsed, &c.Status,
		&c.AdvertisementID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *mysqlCampaignRepository) CreateCampaign(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateCampaign")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("CreateCampaign", status, start) }()

	c.ID = cuid.New()
	span.SetAttributes(
		attribute.String("campaign.id", c.ID),
		attribute.String("campaign.name", c.Name),
		attribute.Float64("campaign.budget", c.BudgetAmount),
	)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, description, campaign_start_date, campaign_end_date,
			budget_allocation_amount, budget_allocation_currency, campaign_status,
			advertisement_id, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.StartDate, c.EndDate,
		c.BudgetAmount, c.BudgetCurrency, c.Status, c.AdvertisementID, c.UserID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert campaign: %w", err)
	}

	inserted, err := scanCampaign(r.db.QueryRowContext(ctx,
		"SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", c.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch inserted campaign: %w", err)
	}

	return inserted, nil
}

func (r *mysqlCampaignRepository) GetCampaignByID(ctx context.Context, id string) (*domain.Campaign, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetCampaignByID")
	defer span.End()

	span.SetAttributes(attribute.String("campaign.id", id))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetCampaignByID", status, start) }()

	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		"SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}
	return c, nil
}

func (r *mysqlCampaignRepository) GetUserCampaign(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetUserCampaign")
	defer span.End()

	span.SetAttributes(attribute.String("campaign.id", id), attribute.String("user.id", userID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetUserCampaign", status, start) }()

	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		"SELECT "+campaignColumns+" FROM campaigns WHERE id = ? AND user_id = ?", id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}
	return c, nil
}

func (r *mysqlCampaignRepository) GetUserCampaigns(ctx context.Context, userID string) ([]*domain.Campaign, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetUserCampaigns")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetUserCampaigns", status, start) }()

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+campaignColumns+" FROM campaigns WHERE user_id = ? ORDER BY created_at", userID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return campaigns, nil
}

func (r *mysqlCampaignRepository) UpdateCampaignStatus(ctx context.Context, userID, id string, newStatus domain.CampaignStatus) error {
	ctx, span := r.tracer.Start(ctx, "Repository UpdateCampaignStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("campaign.id", id),
		attribute.String("campaign.status", string(newStatus)),
	)

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("UpdateCampaignStatus", status, start) }()

	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET campaign_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		newStatus, id, userID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to update campaign status: %w", err)
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

func (r *mysqlCampaignRepository) DeleteCampaign(ctx context.Context, userID, id string) error {
	ctx, span := r.tracer.Start(ctx, "Repository DeleteCampaign")
	defer span.End()

	span.SetAttributes(attribute.String("campaign.id", id))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("DeleteCampaign", status, start) }()

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM campaigns WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to delete campaign: %w", err)
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

func (r *mysqlCampaignRepository) IncreaseBudgetUsed(ctx context.Context, id string, amount float64) error {
	ctx, span := r.tracer.Start(ctx, "Repository IncreaseBudgetUsed")
	defer span.End()

	span.SetAttributes(
		attribute.String("campaign.id", id),
		attribute.Float64("campaign.amount", amount),
	)

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("IncreaseBudgetUsed", status, start) }()

	result, err := r.db.ExecContext(ctx,
		"UPDATE campaigns SET budget_used = budget_used + ? WHERE id = ?", amount, id)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to increase budget used: %w", err)
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
