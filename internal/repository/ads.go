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

const adCacheTTL = 10 * time.Minute

type AdRepository interface {
	CreateAd(ctx context.Context, ad *domain.Advertisement) (*domain.Advertisement, error)
	GetAdByID(ctx context.Context, id string) (*domain.Advertisement, error)
	GetUserAds(ctx context.Context, userID string) ([]*domain.Advertisement, error)
	UpdateAd(ctx context.Context, ad *domain.Advertisement) (*domain.Advertisement, error)
	DeleteAd(ctx context.Context, userID, id string) error
}

type mysqlAdRepository struct {
	db      *sql.DB
	cache   cache.Cache
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlAdRepository(db *sql.DB, cache cache.Cache, metrics *metrics.RepositoryMetrics) AdRepository {
	return &mysqlAdRepository{
		db:      db,
		cache:   cache,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/repository"),
	}
}

const adColumns = "id, title, description, media, target_audience, user_id, created_at, updated_at"

func scanAd(row interface{ Scan(...interface{}) error }) (*domain.Advertisement, error) {
	var ad domain.Advertisement
	err := row.Scan(&ad.ID, &ad.Title, &ad.Description, &ad.Media, &ad.TargetAudience,
		&ad.UserID, &ad.CreatedAt, &ad.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ad, nil
}

func adCacheKey(id string) string { return fmt.Sprintf("ad:%s", id) }

func (r *mysqlAdRepository) CreateAd(ctx context.Context, ad *domain.Advertisement) (*domain.Advertisement, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateAd")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("CreateAd", status, start) }()

	ad.ID = cuid.New()
	span.SetAttributes(attribute.String("ad.id", ad.ID), attribute.String("ad.title", ad.Title))

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO advertisements (id, title, description, media, target_audience, user_id) VALUES (?, ?, ?, ?, ?, ?)",
		ad.ID, ad.Title, ad.Description, ad.Media, ad.TargetAudience, ad.UserID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert advertisement: %w", err)
	}

	inserted, err := scanAd(r.db.QueryRowContext(ctx,
		"SELECT "+adColumns+" FROM advertisements WHERE id = ?", ad.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch inserted advertisement: %w", err)
	}

	return inserted, nil
}

func (r *mysqlAdRepository) GetAdByID(ctx context.Context, id string) (*domain.Advertisement, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetAdByID")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", id))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetAdByID", status, start) }()

	cacheCtx, cacheSpan := r.tracer.Start(ctx, "Redis Get")
	cached, err := r.cache.Get(cacheCtx, adCacheKey(id))
	cacheSpan.End()
	if err == nil {
		var ad domain.Advertisement
		if err := json.Unmarshal([]byte(cached), &ad); err == nil {
			return &ad, nil
		}
	}

	ad, err := scanAd(r.db.QueryRowContext(ctx,
		"SELECT "+adColumns+" FROM advertisements WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}

	if adJSON, err := json.Marshal(ad); err == nil {
		cacheCtx, cacheSpan := r.tracer.Start(ctx, "Redis Set")
		r.cache.Set(cacheCtx, adCacheKey(id), string(adJSON), adCacheTTL)
		cacheSpan.End()
	}

	return ad, nil
}

func (r *mysqlAdRepository) GetUserAds(ctx context.Context, userID string) ([]*domain.Advertisement, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetUserAds")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetUserAds", status, start) }()

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+adColumns+" FROM advertisements WHERE user_id = ? ORDER BY created_at", userID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve advertisements: %w", err)
	}
	defer rows.Close()

	var ads []*domain.Advertisement
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan advertisement: %w", err)
		}
		ads = append(ads, ad)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ads, nil
}

func (r *mysqlAdRepository) UpdateAd(ctx context.Context, ad *domain.Advertisement) (*domain.Advertisement, error) {
	ctx, span := r.tracer.Start(ctx, "Repository UpdateAd")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", ad.ID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("UpdateAd", status, start) }()

	result, err := r.db.ExecContext(ctx, `
		UPDATE advertisements
		SET title = ?, description = ?, media = ?, target_audience = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		ad.Title, ad.Description, ad.Media, ad.TargetAudience, ad.ID, ad.UserID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update advertisement: %w", err)
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
	r.cache.Delete(cacheCtx, adCacheKey(ad.ID))
	cacheSpan.End()

	updated, err := scanAd(r.db.QueryRowContext(ctx,
		"SELECT "+adColumns+" FROM advertisements WHERE id = ?", ad.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch updated advertisement: %w", err)
	}

	return updated, nil
}

func (r *mysqlAdRepository) DeleteAd(ctx context.Context, userID, id string) error {
	ctx, span := r.tracer.Start(ctx, "Repository DeleteAd")
	defer span.End()

	span.SetAttributes(attribute.String("ad.id", id))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("DeleteAd", status, start) }()

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM advertisements WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to delete advertisement: %w", err)
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
	r.cache.Delete(cacheCtx, adCacheKey(id))
	cacheSpan.End()

	return nil
}
