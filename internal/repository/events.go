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

// InteractionStat aggregates events of one type over a reporting window.
type InteractionStat struct {
	EventType        domain.EventType `json:"event_type"`
	Count            int64            `json:"count"`
	PublisherRevenue float64          `json:"publisher_revenue"`
}

type CountryStat struct {
	Country          string  `json:"country"`
	Count            int64   `json:"count"`
	PublisherRevenue float64 `json:"publisher_revenue"`
}

type DeviceStat struct {
	DeviceType       string  `json:"device_type"`
	Count            int64   `json:"count"`
	PublisherRevenue float64 `json:"publisher_revenue"`
}

type DailyStat struct {
	Day              string  `json:"day"`
	Count            int64   `json:"count"`
	PublisherRevenue float64 `json:"publisher_revenue"`
}

type EventRepository interface {
	CreateEvent(ctx context.Context, e *domain.TrackingEvent) (*domain.TrackingEvent, error)
	// HasRecentEvent reports whether the viewer IP already produced an event
	// of the same type for the campaign since the given time.
	HasRecentEvent(ctx context.Context, ip, campaignID string, eventType domain.EventType, since time.Time) (bool, error)
	InteractionStats(ctx context.Context, publisherID string, from, to time.Time) ([]InteractionStat, error)
	CountryStats(ctx context.Context, publisherID string, from, to time.Time) ([]CountryStat, error)
	DeviceStats(ctx context.Context, publisherID string, from, to time.Time) ([]DeviceStat, error)
	DailyTrend(ctx context.Context, publisherID string, days int) ([]DailyStat, error)
}

type mysqlEventRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlEventRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) EventRepository {
	return &mysqlEventRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/repository"),
	}
}

func (r *mysqlEventRepository) CreateEvent(ctx context.Context, e *domain.TrackingEvent) (*domain.TrackingEvent, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateEvent")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("CreateEvent", status, start) }()

	e.ID = cuid.New()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	span.SetAttributes(
		attribute.String("event.id", e.ID),
		attribute.String("event.type", string(e.EventType)),
		attribute.String("campaign.id", e.CampaignID),
	)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracking_events (id, event_type, event_timestamp, campaign_id, ad_id,
			publisher_id, session_id, viewer_ip, viewer_country, viewer_device,
			viewer_device_type, viewer_os, viewer_browser, viewer_language,
			viewer_user_agent, viewer_screen_resolution, viewer_timezone,
			earnings, publisher_earnings, platform_earnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventType, e.Timestamp, e.CampaignID, e.AdID,
		e.PublisherID, e.SessionID, e.ViewerIP, e.ViewerCountry, e.ViewerDevice,
		e.ViewerDeviceType, e.ViewerOS, e.ViewerBrowser, e.ViewerLanguage,
		e.ViewerUserAgent, e.ScreenResolution, e.ViewerTimezone,
		e.Earnings, e.PublisherEarnings, e.PlatformEarnings)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert tracking event: %w", err)
	}

	return e, nil
}

func (r *mysqlEventRepository) HasRecentEvent(ctx context.Context, ip, campaignID string, eventType domain.EventType, since time.Time) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "Repository HasRecentEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("campaign.id", campaignID),
		attribute.String("event.type", string(eventType)),
	)

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("HasRecentEvent", status, start) }()

	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tracking_events
		WHERE viewer_ip = ? AND campaign_id = ? AND event_type = ? AND event_timestamp >= ?`,
		ip, campaignID, eventType, since).Scan(&count)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return false, fmt.Errorf("failed to check recent events: %w", err)
	}
	return count > 0, nil
}

func (r *mysqlEventRepository) InteractionStats(ctx context.Context, publisherID string, from, to time.Time) ([]InteractionStat, error) {
	ctx, span := r.tracer.Start(ctx, "Repository InteractionStats")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", publisherID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("InteractionStats", status, start) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*), COALESCE(SUM(publisher_earnings), 0)
		FROM tracking_events
		WHERE publisher_id = ? AND event_timestamp BETWEEN ? AND ?
		GROUP BY event_type`,
		publisherID, from, to)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve interaction stats: %w", err)
	}
	defer rows.Close()

	var stats []InteractionStat
	for rows.Next() {
		var s InteractionStat
		if err := rows.Scan(&s.EventType, &s.Count, &s.PublisherRevenue); err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan interaction stat: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stats, nil
}

func (r *mysqlEventRepository) CountryStats(ctx context.Context, publisherID string, from, to time.Time) ([]CountryStat, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CountryStats")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", publisherID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("CountryStats", status, start) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT viewer_country, COUNT(*), COALESCE(SUM(publisher_earnings), 0)
		FROM tracking_events
		WHERE publisher_id = ? AND event_timestamp BETWEEN ? AND ?
		GROUP BY viewer_country
		ORDER BY COUNT(*) DESC`,
		publisherID, from, to)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve country stats: %w", err)
	}
	defer rows.Close()

	var stats []CountryStat
	for rows.Next() {
		var s CountryStat
		if err := rows.Scan(&s.Country, &s.Count, &s.PublisherRevenue); err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan country stat: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stats, nil
}

func (r *mysqlEventRepository) DeviceStats(ctx context.Context, publisherID string, from, to time.Time) ([]DeviceStat, error) {
	ctx, span := r.tracer.Start(ctx, "Repository DeviceStats")
	defer span.End()

	span.SetAttributes(attribute.String("publisher.id", publisherID))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("DeviceStats", status, start) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT viewer_device_type, COUNT(*), COALESCE(SUM(publisher_earnings), 0)
		FROM tracking_events
		WHERE publisher_id = ? AND event_timestamp BETWEEN ? AND ?
		GROUP BY viewer_device_type
		ORDER BY COUNT(*) DESC`,
		publisherID, from, to)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve device stats: %w", err)
	}
	defer rows.Close()

	var stats []DeviceStat
	for rows.Next() {
		var s DeviceStat
		if err := rows.Scan(&s.DeviceType, &s.Count, &s.PublisherRevenue); err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan device stat: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stats, nil
}

func (r *mysqlEventRepository) DailyTrend(ctx context.Context, publisherID string, days int) ([]DailyStat, error) {
	ctx, span := r.tracer.Start(ctx, "Repository DailyTrend")
	defer span.End()

	span.SetAttributes(
		attribute.String("publisher.id", publisherID),
		attribute.Int("days", days),
	)

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("DailyTrend", status, start) }()

	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := r.db.QueryContext(ctx, `
		SELECT DATE(event_timestamp), COUNT(*), COALESCE(SUM(publisher_earnings), 0)
		FROM tracking_events
		WHERE publisher_id = ? AND event_timestamp >= ?
		GROUP BY DATE(event_timestamp)
		ORDER BY DATE(event_timestamp)`,
		publisherID, since)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to retrieve daily trend: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(&s.Day, &s.Count, &s.PublisherRevenue); err != nil {
			status = "error"
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stats, nil
}
