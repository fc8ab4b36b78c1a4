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

// SystemLogRepository persists audit records. Failures here must never
// abort the operation being audited.
type SystemLogRepository interface {
	InsertLog(ctx context.Context, entry *domain.SystemLog) error
}

type mysqlSystemLogRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlSystemLogRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) SystemLogRepository {
	return &mysqlSystemLogRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/repository"),
	}
}

func (r *mysqlSystemLogRepository) InsertLog(ctx context.Context, entry *domain.SystemLog) error {
	ctx, span := r.tracer.Start(ctx, "Repository InsertLog")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("InsertLog", status, start) }()

	entry.ID = cuid.New()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	span.SetAttributes(
		attribute.String("log.level", string(entry.Level)),
		attribute.String("log.category", string(entry.Category)),
	)

	var metadata interface{}
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO system_logs (id, timestamp, level, category, message, metadata,
			request_id, user_id, ip_address, endpoint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.Level, entry.Category, entry.Message, metadata,
		nullable(entry.RequestID), nullable(entry.UserID), nullable(entry.IPAddress),
		nullable(entry.Endpoint))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to insert system log: %w", err)
	}
	return nil
}
