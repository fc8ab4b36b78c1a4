// Package geoip resolves viewer IP addresses to geographic information
// using public lookup services with failover.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// IPInfo describes the location of a viewer IP address.
type IPInfo struct {
	IP        string  `json:"ip"`
	Country   string  `json:"country"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	IsEU      bool    `json:"is_eu"`
}

var euCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true,
}

type Client struct {
	httpClient *http.Client
	endpoints  []string
	debug      bool
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints replaces the default lookup endpoints. Each endpoint must
// contain the literal "#ip" placeholder.
func WithEndpoints(endpoints ...string) Option {
	return func(c *Client) { c.endpoints = endpoints }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDebug makes loopback addresses resolve to placeholder info instead
// of failing, so local development works without outbound network access.
func WithDebug(debug bool) Option {
	return func(c *Client) { c.debug = debug }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		endpoints: []string{
			"http://ip-api.com/json/#ip",
			"https://ipinfo.io/#ip/json",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup resolves an IP address, trying each endpoint in order.
func (c *Client) Lookup(ctx context.Context, ip string) (*IPInfo, error) {
	if c.debug && (ip == "127.0.0.1" || ip == "::1") {
		return &IPInfo{IP: ip, Country: "Unknown", City: "Unknown", Timezone: "Unknown"}, nil
	}

	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("invalid IP address: %q", ip)
	}

	var lastErr error
	for _, endpoint := range c.endpoints {
		url := strings.ReplaceAll(endpoint, "#ip", ip)
		info, err := c.fetch(ctx, url, ip)
		if err != nil {
			lastErr = err
			continue
		}
		return info, nil
	}
	return nil, fmt.Errorf("all geoip lookups failed: %w", lastErr)
}

func (c *Client) fetch(ctx context.Context, url, ip string) (*IPInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip lookup returned status %d", resp.StatusCode)
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode geoip response: %w", err)
	}

	return parseResponse(payload, ip)
}

// parseResponse handles the two supported provider formats: ip-api.com
// (countryCode/lat/lon) and ipinfo.io (country/loc).
func parseResponse(payload map[string]json.RawMessage, ip string) (*IPInfo, error) {
	str := func(key string) string {
		var s string
		if raw, ok := payload[key]; ok {
			_ = json.Unmarshal(raw, &s)
		}
		return s
	}
	num := func(key string) float64 {
		var f float64
		if raw, ok := payload[key]; ok {
			_ = json.Unmarshal(raw, &f)
		}
		return f
	}

	if country := str("countryCode"); country != "" {
		return &IPInfo{
			IP:        ip,
			Country:   country,
			City:      str("city"),
			Latitude:  num("lat"),
			Longitude: num("lon"),
			Timezone:  str("timezone"),
			IsEU:      euCountries[country],
		}, nil
	}

	if country := str("country"); country != "" {
		info := &IPInfo{
			IP:       ip,
			Country:  country,
			City:     str("city"),
			Timezone: str("timezone"),
			IsEU:     euCountries[country],
		}
		if loc := str("loc"); loc != "" {
			parts := strings.SplitN(loc, ",", 2)
			if len(parts) == 2 {
				info.Latitude, _ = strconv.ParseFloat(parts[0], 64)
				info.Longitude, _ = strconv.ParseFloat(parts[1], 64)
			}
		}
		return info, nil
	}

	return nil, fmt.Errorf("geoip response missing country for %s", ip)
}
