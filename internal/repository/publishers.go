package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"adserver/internal/domain"
	"adserver/internal/infrastructure/cache"
	"adserver/internal/infrastructure/metrics"
	"adserver/pkg/cuid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const publisherCacheTTL = 5 * time.Minute

type PublisherRepository interface {
	CreatePublisher(ctx context.Context, p *domain.Publisher) (*domain.Publisher, error)
	GetPublisherByID(ctx context.Context, id string) (*domain.Publisher, error)
	GetUserPublisher(ctx context.Context, userID, id string) (*domain.Publisher, error)
	GetUserPublishers(ctx context.Context, userID string, offset, limit int) ([]*domain.Publisher, error)
	UpdatePublisher(ctx context.Context, p *domain.Publisher) (*domain.Publisher, error)
	DeletePublisher(ctx context.Context, userID, id string) error
	AddRevenue(ctx context.Context, id string, amount float64) error
}

type mysqlPublisherRepository struct {
	db      *sql.DB
	cache   cache.Cache
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlPublisherRepository(db *sql.DB, cache cache.Cache, metrics *metrics.RepositoryMetrics) PublisherRepository {
	return &mysqlPublisherRepository{
		db:      db,
		cache:   cache,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/repository"),
	}
}

const publisherColumns = "id, publishing_platform, revenue, user_id, created_at"

func scanPublisher(row interface{ Scan(...interface{}) error }) (*domain.Publisher, error) {
	var p domain.Publisher
	if err := row.Scan(&p.ID, &p.Platform, &p.Revenue, &p.UserID, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func publisherCacheKey(id string) string { return fmt.Sprintf("publisher:%s", id) }

func (r *mysqlPublisherRepository) CreatePublisher(ctx context.Context, p *domain.Publisher) (*domain.Publisher, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreatePublisher")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("CreatePublisher", status, start) }()

	p.ID = cuid.New()
	span.SetAttributes(
		attribute.String("publisher.id", p.ID),
		attribute.String("publisher.platform", string(p.Platform)),
	)

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO publishers (id, publishing_platform, user_id) VALUES (?, ?, ?)",
		p.ID, p.Platform, p.UserID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert publisher: %w", err)
	}

	inserted, err := scanPublisher(r.db.QueryRowContext(ctx,
		"SELECT "+publisherColumns+" FROM publishers WHERE id = ?", p.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch inserted publisher: %w", err)
	}

	return inserted, nil
}

func (r *mysqlPublisherRepository) GetPublisherByID(ctx context.Context, id string) (*domain.Publisher, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetPublisherByID")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", id))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetPublisherByID", status, start) }()

	cacheCtx, cacheSpan := r.tracer.Start(ctx, "Redis Get")
	cached, err := r.cache.Get(cacheCtx, publisherCacheKey(id))
	cacheSpan.End()
	if err == nil {
		var p domain.Publisher
		if err := json.Unmarshal([]byte(cached), &p); err == nil {
			return &p, nil
		}
	}

	p, err := scanPublisher(r.db.QueryRowContext(ctx,
		"SELECT "+publisherColumns+" FROM publishers WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}

	if pJSON, err := json.Marshal(p); err == nil {
		cacheCtx, cacheSpan := r.tracer.Start(ctx, "Redis Set")
		r.cache.Set(cacheCtx, publisherCacheKey(id), string(pJSON), publisherCacheTTL)
		cacheSpan.End()
	}

	return p, nil
}

func (r *mysqlPublisherRepository) GetUserPublisher(ctx context.Context, userID, id string) (*domain.Publisher, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetUserPublisher")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", id), attribute.String("user.id", userID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetUserPublisher", status, start) }()

	p, err := scanPublisher(r.db.QueryRowContext(ctx,
		"SELECT "+publisherColumns+" FROM publishers WHERE id = ? AND user_id = ?", id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}
	return p, nil
}

func (r *mysqlPublisherRepository) GetUserPublishers(ctx context.Context, userID string, offset, limit int) ([]*domain.Publisher, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetUserPublishers")
	defer span.End()

	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Int("offset", offset),
		attribute.Int("limit", limit),
	)

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetUserPublishers", status, start) }()

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+publisherColumns+" FROM publishers WHERE user_id = ? ORDER BY created_at LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve publishers: %w", err)
	}
	defer rows.Close()

	var publishers []*domain.Publisher
	for rows.Next() {
		p, err := scanPublisher(rows)
		if err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan publisher: %w", err)
		}
		publishers = append(publishers, p)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return publishers, nil
}

func (r *mysqlPublisherRepository) UpdatePublisher(ctx context.Context, p *domain.Publisher) (*domain.Publisher, error) {
	ctx, span := r.tracer.Start(ctx, "Repository UpdatePublisher")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", p.ID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("UpdatePublisher", status, start) }()

	result, err := r.db.ExecContext(ctx,
		"UPDATE publishers SET publishing_platform = ? WHERE id = ? AND user_id = ?",
		p.Platform, p.ID, p.UserID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update publisher: %w", err)
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

	cacheCtx, cacheSpan := r.tracer.Start(ctx, "Redis Delete")
	r.cache.Delete(cacheCtx, publisherCacheKey(p.ID))
	cacheSpan.End()

	updated, err := scanPublisher(r.db.QueryRowContext(ctx,
		"SELECT "+publisherColumns+" FROM publishers WHERE id = ?", p.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch updated publisher: %w", err)
	}

	return updated, nil
}

func (r *mysqlPublisherRepository) DeletePublisher(ctx context.Context, userID, id string) error {
	ctx, span := r.tracer.Start(ctx, "Repository DeletePublisher")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", id))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("DeletePublisher", status, start) }()

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM publishers WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to delete publisher: %w", err)
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

	cacheCtx, cacheSpan := r.tracer.Start(ctx, "Redis Delete")
	r.cache.Delete(cacheCtx, publisherCacheKey(id))
	cacheSpan.End()

	return nil
}

func (r *mysqlPublisherRepository) AddRevenue(ctx context.Context, id string, amount float64) error {
	ctx, span := r.tracer.Start(ctx, "Repository AddRevenue")
	defer span.End()

	span.SetAttributes(
		attribute.String("publisher.id", id),
		attribute.Float64("publisher.amount", amount),
	)

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("AddRevenue", status, start) }()

	result, err := r.db.ExecContext(ctx,
		"UPDATE publishers SET revenue = revenue + ? WHERE id = ?", amount, id)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to add publisher revenue: %w", err)
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

	cacheCtx, cacheSpan := r.tracer.Start(ctx, "Redis Delete")
	r.cache.Delete(cacheCtx, publisherCacheKey(id))
	cacheSpan.End()

	return nil
}
