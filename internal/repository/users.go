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

type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	EmailOrUsernameTaken(ctx context.Context, email, username string) (bool, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type mysqlUserRepository struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewMysqlUserRepository(db *sql.DB, metrics *metrics.RepositoryMetrics) UserRepository {
	return &mysqlUserRepository{
		db:      db,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/repository"),
	}
}

const userColumns = `id, username, email, hashed_password, user_type, phone_number, full_name,
	company_name, company_website, is_active, is_verified, created_at, last_login`

func scanUser(row interface{ Scan(...interface{}) error }) (*domain.User, error) {
	var (
		user      domain.User
		phone     sql.NullString
		company   sql.NullString
		website   sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.HashedPassword, &user.UserType,
		&phone, &user.FullName, &company, &website, &user.IsActive, &user.IsVerified,
		&user.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	user.PhoneNumber = phone.String
	user.CompanyName = company.String
	user.CompanyWebsite = website.String
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	return &user, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *mysqlUserRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateUser")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("CreateUser", status, start) }()

	user.ID = cuid.New()
	span.SetAttributes(attribute.String("user.id", user.ID))

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, hashed_password, user_type, phone_number,
			full_name, company_name, company_website, is_active, is_verified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.HashedPassword, user.UserType,
		nullable(user.PhoneNumber), user.FullName, nullable(user.CompanyName),
		nullable(user.CompanyWebsite), user.IsActive, user.IsVerified)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	inserted, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", user.ID))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch inserted user: %w", err)
	}

	return inserted, nil
}

func (r *mysqlUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetUserByID")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", id))

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetUserByID", status, start) }()

	user, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}
	return user, nil
}

func (r *mysqlUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetUserByEmail")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("GetUserByEmail", status, start) }()

	user, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email))
	if err != nil {
		if err == sql.ErrNoRows {
			status = "not_found"
		} else {
			status = "error"
			span.RecordError(err)
		}
		return nil, err
	}
	return user, nil
}

func (r *mysqlUserRepository) EmailOrUsernameTaken(ctx context.Context, email, username string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "Repository EmailOrUsernameTaken")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("EmailOrUsernameTaken", status, start) }()

	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE email = ? OR username = ?", email, username).Scan(&count)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return false, fmt.Errorf("failed to check user uniqueness: %w", err)
	}
	return count > 0, nil
}

func (r *mysqlUserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	ctx, span := r.tracer.Start(ctx, "Repository TouchLastLogin")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { r.metrics.Observe("TouchLastLogin", status, start) }()

	_, err := r.db.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", at, id)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
