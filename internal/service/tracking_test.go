package service

import (
	"context"
	"testing"
	"time"

	"adserver/internal/config"
	"adserver/internal/domain"
	"adserver/internal/infrastructure/geoip"
	"adserver/internal/pricing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	botUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

	viewerIP = "127.0.0.1"
)

type trackingFixture struct {
	svc        TrackingService
	sessions   *fakeSessionRepo
	events     *fakeEventRepo
	campaigns  *fakeCampaignRepo
	publishers *fakePublisherRepo
	earnings   *fakeEarningsRepo
	audit      *fakeAuditRepo

	publisherID string
	campaignID  string
}

func newTrackingFixture(t *testing.T) *trackingFixture {
	t.Helper()
	ctx := context.Background()

	fx := &trackingFixture{
		sessions:   newFakeSessionRepo(),
		events:     newFakeEventRepo(),
		campaigns:  newFakeCampaignRepo(),
		publishers: newFakePublisherRepo(),
		earnings:   newFakeEarningsRepo(),
		audit:      newFakeAuditRepo(),
	}

	p, err := fx.publishers.CreatePublisher(ctx, &domain.Publisher{
		Platform: domain.PlatformWebsite,
		UserID:   "01hvx0000000000000000000us",
	})
	require.NoError(t, err)
	fx.publisherID = p.ID

	now := time.Now().UTC()
	c, err := fx.campaigns.CreateCampaign(ctx, &domain.Campaign{
		Name:            "Spring Push",
		StartDate:       now.Add(-time.Hour),
		EndDate:         now.Add(24 * time.Hour),
		BudgetAmount:    25,
		BudgetCurrency:  "USD",
		Status:          domain.CampaignStatusActive,
		AdvertisementID: "01hvx0000000000000000000ad",
		UserID:          "01hvx0000000000000000000us",
	})
	require.NoError(t, err)
	fx.campaignID = c.ID

	rateCard, err := pricing.NewManager("")
	require.NoError(t, err)

	// Debug mode resolves loopback addresses without network access.
	geo := geoip.NewClient(geoip.WithDebug(true))

	fx.svc = NewTrackingService(fx.sessions, fx.events, fx.campaigns, fx.publishers,
		fx.earnings, fx.audit, rateCard, geo, config.AuthConfig{
			Secret:             "test-secret",
			Algorithm:          "HS256",
			TokenExpireMinutes: 30,
		}, testMetrics)
	return fx
}

func (fx *trackingFixture) initSession(t *testing.T, userAgent string) *SessionGrant {
	t.Helper()
	grant, err := fx.svc.InitSession(context.Background(), InitSessionInput{
		PublisherID:      fx.publisherID,
		ViewerIP:         viewerIP,
		UserAgent:        userAgent,
		ScreenResolution: "1920x1080",
		Language:         "en-US",
	})
	require.NoError(t, err)
	return grant
}

func TestTrackingService_InitSession(t *testing.T) {
	fx := newTrackingFixture(t)

	grant := fx.initSession(t, desktopUA)
	assert.NotEmpty(t, grant.Token)
	assert.NotEmpty(t, grant.SessionID)
	assert.True(t, grant.ExpiresAt.After(time.Now()))
	require.Len(t, fx.sessions.sessions, 1)
	// The database row outlives the token slightly.
	assert.True(t, fx.sessions.sessions[0].ExpiresAt.After(grant.ExpiresAt))
}

func TestTrackingService_InitSessionUnknownPublisher(t *testing.T) {
	fx := newTrackingFixture(t)

	_, err := fx.svc.InitSession(context.Background(), InitSessionInput{
		PublisherID: "01hvx0000000000000000000xx",
		ViewerIP:    viewerIP,
		UserAgent:   desktopUA,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrackingService_InitSessionRejectsBots(t *testing.T) {
	fx := newTrackingFixture(t)

	_, err := fx.svc.InitSession(context.Background(), InitSessionInput{
		PublisherID: fx.publisherID,
		ViewerIP:    viewerIP,
		UserAgent:   botUA,
	})
	assert.ErrorIs(t, err, ErrBotTraffic)
	require.Len(t, fx.audit.entries, 1)
	assert.Equal(t, domain.LogCategorySecurity, fx.audit.entries[0].Category)
}

func TestTrackingService_TrackEvent(t *testing.T) {
	fx := newTrackingFixture(t)
	grant := fx.initSession(t, desktopUA)

	event, err := fx.svc.TrackEvent(context.Background(), TrackEventInput{
		Token:       grant.Token,
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   domain.EventClick,
		ViewerIP:    viewerIP,
		UserAgent:   desktopUA,
	})
	require.NoError(t, err)

	// Loopback resolves to an unknown country, so the fallback region
	// click rate applies with the desktop multiplier: 0.1 * 0.9.
	assert.InDelta(t, 0.09, event.Earnings, 1e-9)
	assert.InDelta(t, 0.09*pricing.PublisherShareRate, event.PublisherEarnings, 1e-9)
	assert.InDelta(t, event.Earnings, event.PublisherEarnings+event.PlatformEarnings, 1e-9)
	assert.Equal(t, "desktop", event.ViewerDeviceType)
	assert.Equal(t, grant.SessionID, event.SessionID)
	assert.Equal(t, "01hvx0000000000000000000ad", event.AdID)

	assert.InDelta(t, 0.09, fx.campaigns.budgetUsed[fx.campaignID], 1e-9)
	assert.InDelta(t, event.PublisherEarnings, fx.publishers.revenue[fx.publisherID], 1e-9)
	assert.Equal(t, 1, fx.earnings.upserts)
}

func TestTrackingService_TrackEventDeduplicates(t *testing.T) {
	fx := newTrackingFixture(t)
	grant := fx.initSession(t, desktopUA)

	input := TrackEventInput{
		Token:       grant.Token,
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   domain.EventImpression,
		ViewerIP:    viewerIP,
		UserAgent:   desktopUA,
	}

	_, err := fx.svc.TrackEvent(context.Background(), input)
	require.NoError(t, err)

	_, err = fx.svc.TrackEvent(context.Background(), input)
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	// A different event type from the same viewer is still accepted.
	input.EventType = domain.EventClick
	_, err = fx.svc.TrackEvent(context.Background(), input)
	assert.NoError(t, err)
}

func TestTrackingService_TrackEventSessionMismatchBlacklists(t *testing.T) {
	fx := newTrackingFixture(t)
	grant := fx.initSession(t, desktopUA)

	_, err := fx.svc.TrackEvent(context.Background(), TrackEventInput{
		Token:       grant.Token,
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   domain.EventClick,
		ViewerIP:    "10.0.0.9",
		UserAgent:   desktopUA,
	})
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Contains(t, fx.sessions.blacklisted, grant.Token)

	// The blacklisted token no longer works even from the right client.
	_, err = fx.svc.TrackEvent(context.Background(), TrackEventInput{
		Token:       grant.Token,
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   domain.EventClick,
		ViewerIP:    viewerIP,
		UserAgent:   desktopUA,
	})
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestTrackingService_TrackEventRejectsBots(t *testing.T) {
	fx := newTrackingFixture(t)
	ctx := context.Background()

	// Session init rejects bots outright, so seed a session row directly
	// to reach the bot check on the event path.
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fx.publisherID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = fx.sessions.CreateSession(ctx, &domain.TrackingSession{
		Token:           signed,
		ViewerIP:        viewerIP,
		ViewerUserAgent: botUA,
		ExpiresAt:       now.Add(time.Hour),
		PublisherID:     fx.publisherID,
	})
	require.NoError(t, err)

	_, err = fx.svc.TrackEvent(ctx, TrackEventInput{
		Token:       signed,
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   domain.EventClick,
		ViewerIP:    viewerIP,
		UserAgent:   botUA,
	})
	assert.ErrorIs(t, err, ErrBotTraffic)
}

func TestTrackingService_TrackEventInactiveCampaign(t *testing.T) {
	fx := newTrackingFixture(t)
	grant := fx.initSession(t, desktopUA)

	fx.campaigns.campaigns[fx.campaignID].Status = domain.CampaignStatusPaused

	_, err := fx.svc.TrackEvent(context.Background(), TrackEventInput{
		Token:       grant.Token,
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   domain.EventClick,
		ViewerIP:    viewerIP,
		UserAgent:   desktopUA,
	})
	assert.ErrorIs(t, err, ErrCampaignInactive)
}

func TestTrackingService_TrackEventExhaustedBudget(t *testing.T) {
	fx := newTrackingFixture(t)
	grant := fx.initSession(t, desktopUA)

	fx.campaigns.campaigns[fx.campaignID].BudgetUsed = 25

	_, err := fx.svc.TrackEvent(context.Background(), TrackEventInput{
		Token:       grant.Token,
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   domain.EventClick,
		ViewerIP:    viewerIP,
		UserAgent:   desktopUA,
	})
	assert.ErrorIs(t, err, ErrCampaignInactive)
}

func TestTrackingService_TrackEventValidation(t *testing.T) {
	fx := newTrackingFixture(t)
	grant := fx.initSession(t, desktopUA)

	_, err := fx.svc.TrackEvent(context.Background(), TrackEventInput{
		Token:       grant.Token,
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   "hover",
		ViewerIP:    viewerIP,
		UserAgent:   desktopUA,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = fx.svc.TrackEvent(context.Background(), TrackEventInput{
		Token:       "not.a.jwt",
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   domain.EventClick,
		ViewerIP:    viewerIP,
		UserAgent:   desktopUA,
	})
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestTrackingService_MobileMultiplier(t *testing.T) {
	fx := newTrackingFixture(t)
	grant := fx.initSession(t, mobileUA)

	event, err := fx.svc.TrackEvent(context.Background(), TrackEventInput{
		Token:       grant.Token,
		PublisherID: fx.publisherID,
		CampaignID:  fx.campaignID,
		EventType:   domain.EventView,
		ViewerIP:    viewerIP,
		UserAgent:   mobileUA,
	})
	require.NoError(t, err)
	assert.Equal(t, "mobile", event.ViewerDeviceType)
	// Fallback region view rate with the mobile multiplier: 0.003 * 1.2.
	assert.InDelta(t, 0.0036, event.Earnings, 1e-9)
}

func TestTrackingService_CleanupBlacklist(t *testing.T) {
	fx := newTrackingFixture(t)
	grant := fx.initSession(t, desktopUA)

	require.NoError(t, fx.sessions.BlacklistSession(context.Background(), grant.Token))

	// A fresh entry is inside the retention window and must survive.
	cleaned, err := fx.svc.CleanupBlacklist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), cleaned)
	assert.Contains(t, fx.sessions.blacklisted, grant.Token)

	fx.sessions.blacklisted[grant.Token] = time.Now().UTC().Add(-2 * time.Hour)

	cleaned, err = fx.svc.CleanupBlacklist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleaned)
	assert.NotContains(t, fx.sessions.blacklisted, grant.Token)
}
