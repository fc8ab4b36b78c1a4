package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"adserver/internal/config"
	"adserver/internal/domain"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type RegisterInput struct {
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Password       string          `json:"password"`
	UserType       domain.UserType `json:"user_type"`
	PhoneNumber    string          `json:"phone_number"`
	FullName       string          `json:"full_name"`
	CompanyName    string          `json:"company_name"`
	CompanyWebsite string          `json:"company_website"`
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, error)
	// Login verifies credentials and returns a signed access token.
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	// ValidateToken parses an access token and returns the user it belongs to.
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type authService struct {
	users   repository.UserRepository
	auth    config.AuthConfig
	metrics *metrics.ServiceMetrics
	tracer  trace.Tracer
}

func NewAuthService(users repository.UserRepository, auth config.AuthConfig, metrics *metrics.ServiceMetrics) AuthService {
	return &authService{
		users:   users,
		auth:    auth,
		metrics: metrics,
		tracer:  otel.Tracer("adserver/service"),
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "Service Register")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("Register", status, start) }()

	if input.Username == "" || input.FullName == "" {
		status = "invalid"
		return nil, fmt.Errorf("%w: username and full name are required", ErrInvalidInput)
	}
	if !strings.Contains(input.Email, "@") {
		status = "invalid"
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if len(input.Password) < minPasswordLength {
		status = "invalid"
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if input.UserType == "" {
		input.UserType = domain.UserTypeGuest
	}
	if !input.UserType.Valid() {
		status = "invalid"
		return nil, fmt.Errorf("%w: unknown user type %q", ErrInvalidInput, input.UserType)
	}

	taken, err := s.users.EmailOrUsernameTaken(ctx, input.Email, input.Username)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	if taken {
		status = "duplicate"
		return nil, ErrDuplicateUser
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, &domain.User{
		Username:       input.Username,
		Email:          input.Email,
		HashedPassword: string(hashed),
		UserType:       input.UserType,
		PhoneNumber:    input.PhoneNumber,
		FullName:       input.FullName,
		CompanyName:    input.CompanyName,
		CompanyWebsite: input.CompanyWebsite,
		IsActive:       true,
	})
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "Service Login")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("Login", status, start) }()

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "invalid"
			return "", nil, ErrInvalidLogin
		}
		status = "error"
		span.RecordError(err)
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		status = "invalid"
		return "", nil, ErrInvalidLogin
	}
	if !user.IsActive {
		status = "invalid"
		return "", nil, ErrInactiveUser
	}

	now := time.Now().UTC()
	expiry := now.Add(time.Duration(s.auth.TokenExpireMinutes) * time.Minute)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
	})

	signed, err := token.SignedString([]byte(s.auth.Secret))
	if err != nil {
		status = "error"
		span.RecordError(err)
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		status = "error"
		span.RecordError(err)
		return "", nil, err
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	return signed, user, nil
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "Service ValidateToken")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("ValidateToken", status, start) }()

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.auth.Secret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		status = "invalid"
		return nil, ErrForbidden
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "invalid"
			return nil, ErrForbidden
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	if !user.IsActive {
		status = "invalid"
		return nil, ErrInactiveUser
	}
	return user, nil
}

func (s *authService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "Service GetUser")
	defer span.End()

	start := time.Now()
	status := "success"
	defer func() { s.metrics.Observe("GetUser", status, start) }()

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, ErrNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}
	return user, nil
}
