package service

import (
	"context"
	"database/sql"
	"time"

	"adserver/internal/domain"
	"adserver/internal/infrastructure/metrics"
	"adserver/internal/repository"
	"adserver/pkg/cuid"
)

// Prometheus collectors register globally, so the whole package shares
// one set.
var testMetrics = metrics.NewServiceMetrics()

type fakeUserRepo struct {
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *domain.User) (*domain.User, error) {
	user.ID = cuid.New()
	user.CreatedAt = time.Now().UTC()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) EmailOrUsernameTaken(_ context.Context, email, username string) (bool, error) {
	for _, u := range f.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	if u, ok := f.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

type fakeAdRepo struct {
	ads map[string]*domain.Advertisement
}

func newFakeAdRepo() *fakeAdRepo {
	return &fakeAdRepo{ads: make(map[string]*domain.Advertisement)}
}

func (f *fakeAdRepo) CreateAd(_ context.Context, ad *domain.Advertisement) (*domain.Advertisement, error) {
	ad.ID = cuid.New()
	f.ads[ad.ID] = ad
	return ad, nil
}

func (f *fakeAdRepo) GetAdByID(_ context.Context, id string) (*domain.Advertisement, error) {
	if ad, ok := f.ads[id]; ok {
		return ad, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAdRepo) GetUserAds(_ context.Context, userID string) ([]*domain.Advertisement, error) {
	var ads []*domain.Advertisement
	for _, ad := range f.ads {
		if ad.UserID == userID {
			ads = append(ads, ad)
		}
	}
	return ads, nil
}

func (f *fakeAdRepo) UpdateAd(_ context.Context, ad *domain.Advertisement) (*domain.Advertisement, error) {
	existing, ok := f.ads[ad.ID]
	if !ok || existing.UserID != ad.UserID {
		return nil, sql.ErrNoRows
	}
	f.ads[ad.ID] = ad
	return ad, nil
}

func (f *fakeAdRepo) DeleteAd(_ context.Context, userID, id string) error {
	existing, ok := f.ads[id]
	if !ok || existing.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.ads, id)
	return nil
}

type fakeCampaignRepo struct {
	campaigns  map[string]*domain.Campaign
	budgetUsed map[string]float64
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns:  make(map[string]*domain.Campaign),
		budgetUsed: make(map[string]float64),
	}
}

func (f *fakeCampaignRepo) CreateCampaign(_ context.Context, c *domain.Campaign) (*domain.Campaign, error) {
	c.ID = cuid.New()
	f.campaigns[c.ID] = c
	return c, nil
}

func (f *fakeCampaignRepo) GetCampaignByID(_ context.Context, id string) (*domain.Campaign, error) {
	if c, ok := f.campaigns[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCampaignRepo) GetUserCampaign(_ context.Context, userID, id string) (*domain.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok || c.UserID != userID {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeCampaignRepo) GetUserCampaigns(_ context.Context, userID string) ([]*domain.Campaign, error) {
	var campaigns []*domain.Campaign
	for _, c := range f.campaigns {
		if c.UserID == userID {
			campaigns = append(campaigns, c)
		}
	}
	return campaigns, nil
}

func (f *fakeCampaignRepo) UpdateCampaignStatus(_ context.Context, userID, id string, status domain.CampaignStatus) error {
	c, ok := f.campaigns[id]
	if !ok || c.UserID != userID {
		return sql.ErrNoRows
	}
	c.Status = status
	return nil
}

func (f *fakeCampaignRepo) DeleteCampaign(_ context.Context, userID, id string) error {
	c, ok := f.campaigns[id]
	if !ok || c.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.campaigns, id)
	return nil
}

func (f *fakeCampaignRepo) IncreaseBudgetUsed(_ context.Context, id string, amount float64) error {
	c, ok := f.campaigns[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.BudgetUsed += amount
	f.budgetUsed[id] += amount
	return nil
}

type fakeBillingRepo struct {
	byUser map[string]*domain.BillingData
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{byUser: make(map[string]*domain.BillingData)}
}

func (f *fakeBillingRepo) CreateBilling(_ context.Context, b *domain.BillingData) (*domain.BillingData, error) {
	b.ID = cuid.New()
	f.byUser[b.UserID] = b
	return b, nil
}

func (f *fakeBillingRepo) GetBillingByUser(_ context.Context, userID string) (*domain.BillingData, error) {
	if b, ok := f.byUser[userID]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeBillingRepo) UpdateBilling(_ context.Context, b *domain.BillingData) (*domain.BillingData, error) {
	f.byUser[b.UserID] = b
	return b, nil
}

type fakePublisherRepo struct {
	publishers map[string]*domain.Publisher
	revenue    map[string]float64
}

func newFakePublisherRepo() *fakePublisherRepo {
	return &fakePublisherRepo{
		publishers: make(map[string]*domain.Publisher),
		revenue:    make(map[string]float64),
	}
}

func (f *fakePublisherRepo) CreatePublisher(_ context.Context, p *domain.Publisher) (*domain.Publisher, error) {
	p.ID = cuid.New()
	f.publishers[p.ID] = p
	return p, nil
}

func (f *fakePublisherRepo) GetPublisherByID(_ context.Context, id string) (*domain.Publisher, error) {
	if p, ok := f.publishers[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakePublisherRepo) GetUserPublisher(_ context.Context, userID, id string) (*domain.Publisher, error) {
	p, ok := f.publishers[id]
	if !ok || p.UserID != userID {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakePublisherRepo) GetUserPublishers(_ context.Context, userID string, offset, limit int) ([]*domain.Publisher, error) {
	var publishers []*domain.Publisher
	for _, p := range f.publishers {
		if p.UserID == userID {
			publishers = append(publishers, p)
		}
	}
	return publishers, nil
}

func (f *fakePublisherRepo) UpdatePublisher(_ context.Context, p *domain.Publisher) (*domain.Publisher, error) {
	existing, ok := f.publishers[p.ID]
	if !ok || existing.UserID != p.UserID {
		return nil, sql.ErrNoRows
	}
	existing.Platform = p.Platform
	return existing, nil
}

func (f *fakePublisherRepo) DeletePublisher(_ context.Context, userID, id string) error {
	p, ok := f.publishers[id]
	if !ok || p.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.publishers, id)
	return nil
}

func (f *fakePublisherRepo) AddRevenue(_ context.Context, id string, amount float64) error {
	p, ok := f.publishers[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Revenue += amount
	f.revenue[id] += amount
	return nil
}

type fakeSessionRepo struct {
	sessions    []*domain.TrackingSession
	blacklisted map[string]time.Time
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{blacklisted: make(map[string]time.Time)}
}

func (f *fakeSessionRepo) CreateSession(_ context.Context, s *domain.TrackingSession) (*domain.TrackingSession, error) {
	s.ID = cuid.New()
	s.CreatedAt = time.Now().UTC()
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeSessionRepo) GetValidSession(_ context.Context, token, ip, userAgent, publisherID string) (*domain.TrackingSession, error) {
	_, blacklisted := f.blacklisted[token]
	for _, s := range f.sessions {
		if s.Token == token && s.ViewerIP == ip && s.ViewerUserAgent == userAgent &&
			s.PublisherID == publisherID && s.ExpiresAt.After(time.Now()) && !blacklisted {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSessionRepo) BlacklistSession(_ context.Context, token string) error {
	f.blacklisted[token] = time.Now().UTC()
	return nil
}

func (f *fakeSessionRepo) CleanupBlacklist(_ context.Context, cutoff time.Time) (int64, error) {
	var cleaned int64
	for token, at := range f.blacklisted {
		if !at.After(cutoff) {
			delete(f.blacklisted, token)
			cleaned++
		}
	}
	return cleaned, nil
}

type fakeEventRepo struct {
	events       []*domain.TrackingEvent
	interactions []repository.InteractionStat
}

func newFakeEventRepo() *fakeEventRepo { return &fakeEventRepo{} }

func (f *fakeEventRepo) CreateEvent(_ context.Context, e *domain.TrackingEvent) (*domain.TrackingEvent, error) {
	e.ID = cuid.New()
	f.events = append(f.events, e)
	return e, nil
}

func (f *fakeEventRepo) HasRecentEvent(_ context.Context, ip, campaignID string, eventType domain.EventType, since time.Time) (bool, error) {
	for _, e := range f.events {
		if e.ViewerIP == ip && e.CampaignID == campaignID && e.EventType == eventType && e.Timestamp.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventRepo) InteractionStats(_ context.Context, publisherID string, from, to time.Time) ([]repository.InteractionStat, error) {
	return f.interactions, nil
}

func (f *fakeEventRepo) CountryStats(_ context.Context, publisherID string, from, to time.Time) ([]repository.CountryStat, error) {
	return nil, nil
}

func (f *fakeEventRepo) DeviceStats(_ context.Context, publisherID string, from, to time.Time) ([]repository.DeviceStat, error) {
	return nil, nil
}

func (f *fakeEventRepo) DailyTrend(_ context.Context, publisherID string, days int) ([]repository.DailyStat, error) {
	return nil, nil
}

type fakeEarningsRepo struct {
	rows    map[string]*domain.PublisherEarnings
	upserts int
}

func newFakeEarningsRepo() *fakeEarningsRepo {
	return &fakeEarningsRepo{rows: make(map[string]*domain.PublisherEarnings)}
}

func (f *fakeEarningsRepo) AddEventEarnings(_ context.Context, publisherID string, month time.Time, eventType domain.EventType, gross, publisherShare, platformShare float64) error {
	f.upserts++
	for _, e := range f.rows {
		if e.PublisherID == publisherID && e.Month.Equal(month) {
			e.GrossRevenue += gross
			e.PublisherShare += publisherShare
			e.PlatformShare += platformShare
			return nil
		}
	}
	e := &domain.PublisherEarnings{
		ID:               cuid.New(),
		PublisherID:      publisherID,
		Month:            month,
		GrossRevenue:     gross,
		PublisherShare:   publisherShare,
		PlatformShare:    platformShare,
		WithdrawalStatus: domain.WithdrawalPending,
	}
	f.rows[e.ID] = e
	return nil
}

func (f *fakeEarningsRepo) GetMonthlyEarnings(_ context.Context, publisherID string, month time.Time) (*domain.PublisherEarnings, error) {
	for _, e := range f.rows {
		if e.PublisherID == publisherID && e.Month.Equal(month) {
			return e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEarningsRepo) GetEarningsByID(_ context.Context, id string) (*domain.PublisherEarnings, error) {
	if e, ok := f.rows[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEarningsRepo) GetEarningsInRange(_ context.Context, publisherID string, from, to time.Time) ([]*domain.PublisherEarnings, error) {
	var result []*domain.PublisherEarnings
	for _, e := range f.rows {
		if e.PublisherID == publisherID && !e.Month.Before(from) && !e.Month.After(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeEarningsRepo) GetRequestedWithdrawals(_ context.Context) ([]*domain.PublisherEarnings, error) {
	var result []*domain.PublisherEarnings
	for _, e := range f.rows {
		if e.WithdrawalStatus == domain.WithdrawalRequested {
			result = append(result, e)
		}
	}
	return result, nil
}

func (f *fakeEarningsRepo) MarkWithdrawalRequested(_ context.Context, id string, at time.Time) error {
	e, ok := f.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.WithdrawalStatus = domain.WithdrawalRequested
	e.WithdrawalRequestedAt = &at
	return nil
}

func (f *fakeEarningsRepo) MarkWithdrawalProcessed(_ context.Context, id string, status domain.WithdrawalStatus, notes string, at time.Time) error {
	e, ok := f.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.WithdrawalStatus = status
	e.WithdrawalNotes = notes
	e.WithdrawalProcessedAt = &at
	return nil
}

type fakeAuditRepo struct {
	entries []*domain.SystemLog
}

func newFakeAuditRepo() *fakeAuditRepo { return &fakeAuditRepo{} }

func (f *fakeAuditRepo) InsertLog(_ context.Context, entry *domain.SystemLog) error {
	f.entries = append(f.entries, entry)
	return nil
}
