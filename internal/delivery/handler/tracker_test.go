package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"adserver/internal/domain"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/service"
	"adserver/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Prometheus collectors register globally, so the whole package shares
// one set.
var testMetrics = metrics.NewHandlerMetrics()

type stubTrackingService struct {
	grant *service.SessionGrant
	event *domain.TrackingEvent
	err   error
}

func (s *stubTrackingService) InitSession(context.Context, service.InitSessionInput) (*service.SessionGrant, error) {
	return s.grant, s.err
}

func (s *stubTrackingService) TrackEvent(context.Context, service.TrackEventInput) (*domain.TrackingEvent, error) {
	return s.event, s.err
}

func (s *stubTrackingService) CleanupBlacklist(context.Context) (int64, error) {
	return 0, nil
}

func testLoggers(t *testing.T) *logger.Loggers {
	t.Helper()
	loggers, err := logger.SetupLogger("info")
	require.NoError(t, err)
	return loggers
}

func initSessionCookie(t *testing.T, debug bool) *http.Cookie {
	t.Helper()

	stub := &stubTrackingService{grant: &service.SessionGrant{
		Token:     "signed-token",
		ExpiresAt: time.Now().Add(time.Hour),
		SessionID: "sess-1",
	}}
	h := NewTrackerHandler(stub, testLoggers(t), testMetrics, debug)

	req := httptest.NewRequest(http.MethodPost, "/track/init",
		strings.NewReader(`{"publisher_id":"pub-1"}`))
	rec := httptest.NewRecorder()
	h.InitSession(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestTrackerHandler_SessionCookie(t *testing.T) {
	cookie := initSessionCookie(t, false)
	assert.Equal(t, service.SessionCookieName, cookie.Name)
	assert.Equal(t, "signed-token", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
}

func TestTrackerHandler_SessionCookieDebugNotSecure(t *testing.T) {
	cookie := initSessionCookie(t, true)
	assert.False(t, cookie.Secure)
}

func TestTrackerHandler_TrackEventRequiresCookie(t *testing.T) {
	h := NewTrackerHandler(&stubTrackingService{}, testLoggers(t), testMetrics, false)

	req := httptest.NewRequest(http.MethodPost, "/track/event",
		strings.NewReader(`{"publisher_id":"pub-1","campaign_id":"camp-1","event_type":"click"}`))
	rec := httptest.NewRecorder()
	h.TrackEvent(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
