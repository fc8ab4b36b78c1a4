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

type SessionRepository interface {
	CreateSession(ctx context.Context, s *domain.TrackingSession) (*domain.TrackingSession, error)
	// GetValidSession returns the session matching token, viewer IP, user
	// agent and publisher that is unexpired and not blacklisted.
	GetValidSession(ctx context.Context, token, ip, userAgent, publisherID string) (*domain.TrackingSession, error)
	BlacklistSession(ctx context.Context, token string) error
	// CleanupBlacklist un-blacklists sessions blacklisted before cutoff.
	CleanupBlacklist(ctx context.Context, cutoff time.Time) (int64, error)
}

type mysqlSessionRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlSessionRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) SessionRepository {
	return &mysqlSessionRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/repository"),
	}
}

const sessionColumns = `id, jwt_token, viewer_ip, viewer_user_agent, viewer_screen_resolution,
	viewer_language, created_at, expires_at, is_blacklisted, blacklisted_at, publisher_id`

func scanSession(row interface{ Scan(...interface{}) error }) (*domain.TrackingSession, error) {
	var (
		s             domain.TrackingSession
		resolution    sql.NullString
		language      sql.NullString
		blacklistedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Token, &s.ViewerIP, &s.ViewerUserAgent, &resolution,
		&language, &s.CreatedAt, &s.ExpiresAt, &s.Blacklisted, &blacklistedAt, &s.PublisherID)
	if err != nil {
		return nil, err
	}
	s.ScreenResolution = resolution.String
	s.Language = language.String
	if blacklistedAt.Valid {
		s.BlacklistedAt = &blacklistedAt.Time
	}
	return &s, nil
}

func (r *mysqlSessionRepository) CreateSession(ctx context.Context, s *domain.TrackingSession) (*domain.TrackingSession, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateSession")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("CreateSession", status, start) }()

	s.ID = cuid.New()
	span.SetAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("publisher.id", s.PublisherID),
	)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_tracking_sessions
			(id, jwt_token, viewer_ip, viewer_user_agent, viewer_screen_resolution,
			 viewer_language, expires_at, publisher_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Token, s.ViewerIP, s.ViewerUserAgent, nullable(s.ScreenResolution),
		nullable(s.Language), s.ExpiresAt, s.PublisherID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert tracking session: %w", err)
	}

	inserted, err := scanSession(r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM campaign_tracking_sessions WHERE id = ?", s.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch inserted tracking session: %w", err)
	}

	return inserted, nil
}

func (r *mysqlSessionRepository) GetValidSession(ctx context.Context, token, ip, userAgent, publisherID string) (*domain.TrackingSession, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetValidSession")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", publisherID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetValidSession", status, start) }()

	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM campaign_tracking_sessions
		WHERE jwt_token = ? AND viewer_ip = ? AND viewer_user_agent = ?
			AND publisher_id = ? AND expires_at > ? AND is_blacklisted = FALSE`,
		token, ip, userAgent, publisherID, time.Now().UTC()))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}
	return s, nil
}

func (r *mysqlSessionRepository) BlacklistSession(ctx context.Context, token string) error {
	ctx, span := r.tracer.Start(ctx, "Repository BlacklistSession")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("BlacklistSession", status, start) }()

	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_tracking_sessions
		SET is_blacklisted = TRUE, blacklisted_at = ?
		WHERE jwt_token = ?`,
		time.Now().UTC(), token)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to blacklist session: %w", err)
	}
	return nil
}

func (r *mysqlSessionRepository) CleanupBlacklist(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CleanupBlacklist")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("CleanupBlacklist", status, start) }()

	result, err := r.db.ExecContext(ctx, `
		UPDATE campaign_tracking_sessions
		SET is_blacklisted = FALSE, blacklisted_at = NULL
		WHERE is_blacklisted = TRUE AND blacklisted_at <= ?`,
		cutoff)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return 0, fmt.Errorf("failed to clean up blacklist: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return 0, fmt.Errorf("failed to retrieve rows affected: %w", err)
	}

	span.SetAttributes(attribute.Int64("sessions.cleaned", affected))
	return affected, nil
}
