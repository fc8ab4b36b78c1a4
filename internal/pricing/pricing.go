// Package pricing prices ad interactions from a JSON rate card. Rates
// vary by viewer region and interaction type, with per-device
// multipliers. Event revenue is split between publisher and platform.
package pricing

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"adserver/internal/domain"
)

// PublisherShareRate is the publisher's cut of gross event revenue; the
// platform keeps the remainder.
const PublisherShareRate = 0.65

//go:embed rates.json
var defaultRates []byte

type RegionRates struct {
	Description string             `json:"description"`
	Countries   []string           `json:"countries"`
	Rates       map[string]float64 `json:"rates"`
	Currency    string             `json:"currency"`
}

type RateCard struct {
	Regions         map[string]RegionRates `json:"regions"`
	RateMultipliers map[string]float64     `json:"rate_multipliers"`
	DefaultCurrency string                 `json:"default_currency"`
	MinimumPayout   float64                `json:"minimum_payout"`
	PaymentSchedule string                 `json:"payment_schedule"`
	LastUpdated     time.Time              `json:"last_updated"`
	Version         string                 `json:"version"`
}

// Revenue is the priced outcome of one ad interaction.
type Revenue struct {
	BaseRate         float64 `json:"base_rate"`
	DeviceMultiplier float64 `json:"device_multiplier"`
	FinalRate        float64 `json:"final_rate"`
	PublisherShare   float64 `json:"publisher_share"`
	PlatformShare    float64 `json:"platform_share"`
	Currency         string  `json:"currency"`
}

type Manager struct {
	card          RateCard
	countryRegion map[string]string
}

// NewManager loads the rate card from path, or the embedded default
// when path is empty.
func NewManager(path string) (*Manager, error) {
	data := defaultRates
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rate card: %w", err)
		}
	}

	var card RateCard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("invalid rate card JSON: %w", err)
	}
	if _, ok := card.Regions["other"]; !ok {
		return nil, fmt.Errorf("rate card must define the fallback region %q", "other")
	}

	countryRegion := make(map[string]string)
	for region, data := range card.Regions {
		for _, country := range data.Countries {
			countryRegion[strings.ToUpper(country)] = region
		}
	}

	return &Manager{card: card, countryRegion: countryRegion}, nil
}

// RegionForCountry maps an ISO 3166-1 alpha-2 country code to a pricing
// region, defaulting to "other".
func (m *Manager) RegionForCountry(countryCode string) string {
	if region, ok := m.countryRegion[strings.ToUpper(countryCode)]; ok {
		return region
	}
	return "other"
}

func (m *Manager) BaseRate(countryCode string, event domain.EventType) (float64, error) {
	region := m.card.Regions[m.RegionForCountry(countryCode)]
	rate, ok := region.Rates[string(event)]
	if !ok {
		return 0, fmt.Errorf("no rate configured for interaction type %q", event)
	}
	return rate, nil
}

// DeviceMultiplier returns the rate multiplier for a device type;
// unknown devices get 1.0.
func (m *Manager) DeviceMultiplier(deviceType string) float64 {
	if mult, ok := m.card.RateMultipliers[strings.ToLower(deviceType)]; ok {
		return mult
	}
	return 1.0
}

func (m *Manager) CalculateRevenue(countryCode string, event domain.EventType, deviceType string) (*Revenue, error) {
	base, err := m.BaseRate(countryCode, event)
	if err != nil {
		return nil, err
	}

	mult := m.DeviceMultiplier(deviceType)
	final := base * mult
	publisherShare := final * PublisherShareRate

	region := m.card.Regions[m.RegionForCountry(countryCode)]

	return &Revenue{
		BaseRate:         base,
		DeviceMultiplier: mult,
		FinalRate:        final,
		PublisherShare:   publisherShare,
		PlatformShare:    final - publisherShare,
		Currency:         region.Currency,
	}, nil
}

func (m *Manager) MinimumPayout() float64 { return m.card.MinimumPayout }

func (m *Manager) PaymentSchedule() string { return m.card.PaymentSchedule }

func (m *Manager) LastUpdated() time.Time { return m.card.LastUpdated }
