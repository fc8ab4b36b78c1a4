package pricing

import (
	"testing"

	"adserver/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("")
	require.NoError(t, err)
	return m
}

func TestManager_RegionForCountry(t *testing.T) {
	m := newTestManager(t)

	cases := []struct {
		country string
		region  string
	}{
		{"US", "na"},
		{"ca", "na"},
		{"DE", "eu"},
		{"GB", "eu"},
		{"SA", "gcc"},
		{"BR", "other"},
		{"ZZ", "other"},
		{"", "other"},
		{"Unknown", "other"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.region, m.RegionForCountry(tc.country), "country %q", tc.country)
	}
}

func TestManager_BaseRate(t *testing.T) {
	m := newTestManager(t)

	rate, err := m.BaseRate("US", domain.EventClick)
	require.NoError(t, err)
	assert.InDelta(t, 0.45, rate, 1e-9)

	rate, err = m.BaseRate("ZZ", domain.EventImpression)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, rate, 1e-9)

	_, err = m.BaseRate("US", domain.EventType("hover"))
	assert.Error(t, err)
}

func TestManager_DeviceMultiplier(t *testing.T) {
	m := newTestManager(t)

	assert.InDelta(t, 1.2, m.DeviceMultiplier("mobile"), 1e-9)
	assert.InDelta(t, 0.9, m.DeviceMultiplier("Desktop"), 1e-9)
	assert.InDelta(t, 1.0, m.DeviceMultiplier("smart-fridge"), 1e-9)
}

func TestManager_CalculateRevenue(t *testing.T) {
	m := newTestManager(t)

	rev, err := m.CalculateRevenue("SA", domain.EventClick, "mobile")
	require.NoError(t, err)

	assert.InDelta(t, 0.4, rev.BaseRate, 1e-9)
	assert.InDelta(t, 1.2, rev.DeviceMultiplier, 1e-9)
	assert.InDelta(t, 0.48, rev.FinalRate, 1e-9)
	assert.InDelta(t, 0.48*PublisherShareRate, rev.PublisherShare, 1e-9)
	assert.InDelta(t, rev.FinalRate, rev.PublisherShare+rev.PlatformShare, 1e-9)
	assert.Equal(t, "USD", rev.Currency)
}

func TestManager_PayoutTerms(t *testing.T) {
	m := newTestManager(t)

	assert.InDelta(t, 100.0, m.MinimumPayout(), 1e-9)
	assert.Equal(t, "monthly", m.PaymentSchedule())
	assert.False(t, m.LastUpdated().IsZero())
}

func TestNewManager_MissingFile(t *testing.T) {
	_, err := NewManager("/nonexistent/rates.json")
	assert.Error(t, err)
}
