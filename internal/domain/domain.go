package domain

import (
	"encoding/json"
	"time"
)

type UserType string

const (
	UserTypeAdvertiser UserType = "ADVERTISER"
	UserTypePublisher  UserType = "PUBLISHER"
	UserTypeGuest      UserType = "GUEST"
)

func (t UserType) Valid() bool {
	switch t {
	case UserTypeAdvertiser, UserTypePublisher, UserTypeGuest:
		return true
	}
	return false
}

type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	HashedPassword string     `json:"-"`
	UserType       UserType   `json:"user_type"`
	PhoneNumber    string     `json:"phone_number,omitempty"`
	FullName       string     `json:"full_name"`
	CompanyName    string     `json:"company_name,omitempty"`
	CompanyWebsite string     `json:"company_website,omitempty"`
	IsActive       bool       `json:"is_active"`
	IsVerified     bool       `json:"is_verified"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

type Advertisement struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Media          string    `json:"media"`
	TargetAudience string    `json:"target_audience"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusPaused,
		CampaignStatusCompleted, CampaignStatusCancelled:
		return true
	}
	return false
}

type Campaign struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	StartDate       time.Time      `json:"campaign_start_date"`
	EndDate         time.Time      `json:"campaign_end_date"`
	BudgetAmount    float64        `json:"budget_allocation_amount"`
	BudgetCurrency  string         `json:"budget_allocation_currency"`
	BudgetUsed      float64        `json:"budget_used"`
	Status          CampaignStatus `json:"campaign_status"`
	AdvertisementID string         `json:"advertisement_id"`
	UserID          string         `json:"user_id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type BillingData struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	BillingAddress string  `json:"billing_address"`
	TaxID          string  `json:"tax_id,omitempty"`
	Balance        float64 `json:"balance"`
	Currency       string  `json:"currency"`
}

type PublishingPlatform string

const (
	PlatformWebsite   PublishingPlatform = "website"
	PlatformEmail     PublishingPlatform = "email"
	PlatformMobileApp PublishingPlatform = "mobile_app"
)

func (p PublishingPlatform) Valid() bool {
	switch p {
	case PlatformWebsite, PlatformEmail, PlatformMobileApp:
		return true
	}
	return false
}

type Publisher struct {
	ID        string             `json:"id"`
	Platform  PublishingPlatform `json:"publishing_platform"`
	Revenue   float64            `json:"revenue"`
	UserID    string             `json:"user_id"`
	CreatedAt time.Time          `json:"created_at"`
}

// TrackingSession is a short-lived viewer session issued before any
// tracking events are accepted. The JWT stored here must match the
// cookie presented on event submission.
type TrackingSession struct {
	ID               string     `json:"id"`
	Token            string     `json:"-"`
	ViewerIP         string     `json:"viewer_ip"`
	ViewerUserAgent  string     `json:"viewer_user_agent"`
	ScreenResolution string     `json:"viewer_screen_resolution,omitempty"`
	Language         string     `json:"viewer_language,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	Blacklisted      bool       `json:"is_blacklisted"`
	BlacklistedAt    *time.Time `json:"blacklisted_at,omitempty"`
	PublisherID      string     `json:"publisher_id"`
}

type EventType string

const (
	EventImpression EventType = "impression"
	EventClick      EventType = "click"
	EventView       EventType = "view"
)

func (e EventType) Valid() bool {
	switch e {
	case EventImpression, EventClick, EventView:
		return true
	}
	return false
}

type TrackingEvent struct {
	ID               string    `json:"id"`
	EventType        EventType `json:"event_type"`
	Timestamp        time.Time `json:"event_timestamp"`
	CampaignID       string    `json:"campaign_id"`
	AdID             string    `json:"ad_id"`
	PublisherID      string    `json:"publisher_id"`
	SessionID        string    `json:"viewer_session_id"`
	ViewerIP         string    `json:"viewer_ip"`
	ViewerCountry    string    `json:"viewer_country"`
	ViewerDevice     string    `json:"viewer_device"`
	ViewerDeviceType string    `json:"viewer_device_type"`
	ViewerOS         string    `json:"viewer_os"`
	ViewerBrowser    string    `json:"viewer_browser"`
	ViewerLanguage   string    `json:"viewer_language"`
	ViewerUserAgent  string    `json:"viewer_user_agent"`
	ScreenResolution string    `json:"viewer_screen_resolution"`
	ViewerTimezone   string    `json:"viewer_timezone"`

	// Earnings is the gross amount the event generated; publisher and
	// platform shares always sum to it.
	Earnings          float64 `json:"earnings"`
	PublisherEarnings float64 `json:"publisher_earnings"`
	PlatformEarnings  float64 `json:"platform_earnings"`
}

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalRequested WithdrawalStatus = "withdrawal_requested"
	WithdrawalApproved  WithdrawalStatus = "withdrawal_approved"
	WithdrawalCompleted WithdrawalStatus = "withdrawal_completed"
	WithdrawalRejected  WithdrawalStatus = "withdrawal_rejected"
)

// PublisherEarnings aggregates a publisher's traffic and revenue for one
// calendar month. Month is always normalized to the first of the month.
type PublisherEarnings struct {
	ID          string    `json:"id"`
	PublisherID string    `json:"publisher_id"`
	Month       time.Time `json:"month"`

	TotalViews       int `json:"total_views"`
	TotalClicks      int `json:"total_clicks"`
	TotalImpressions int `json:"total_impressions"`

	GrossRevenue   float64 `json:"gross_revenue"`
	PublisherShare float64 `json:"publisher_share"`
	PlatformShare  float64 `json:"platform_share"`

	WithdrawalStatus      WithdrawalStatus `json:"withdrawal_status"`
	WithdrawalRequestedAt *time.Time       `json:"withdrawal_requested_at,omitempty"`
	WithdrawalProcessedAt *time.Time       `json:"withdrawal_processed_at,omitempty"`
	WithdrawalNotes       string           `json:"withdrawal_notes,omitempty"`

	IsPaid    bool       `json:"is_paid"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

type LogLevel string

const (
	LogDebug    LogLevel = "debug"
	LogInfo     LogLevel = "info"
	LogWarning  LogLevel = "warning"
	LogError    LogLevel = "error"
	LogCritical LogLevel = "critical"
)

type LogCategory string

const (
	LogCategoryRevenue  LogCategory = "revenue"
	LogCategoryTracking LogCategory = "tracking"
	LogCategorySecurity LogCategory = "security"
	LogCategorySystem   LogCategory = "system"
	LogCategoryAPI      LogCategory = "api"
	LogCategoryDatabase LogCategory = "database"
)

// SystemLog is a persisted audit record, separate from process logging.
type SystemLog struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     LogLevel        `json:"level"`
	Category  LogCategory     `json:"category"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	IPAddress string          `json:"ip_address,omitempty"`
	Endpoint  string          `json:"endpoint,omitempty"`
}
