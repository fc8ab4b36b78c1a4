package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"adserver/internal/domain"
	"adserver/internal/infrastructure/cache"
	"adserver/internal/infrastructure/metrics"
	"adserver/pkg/cuid"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Prometheus collectors register globally, so the whole package shares
// one set.
var testMetrics = metrics.NewRepositoryMetrics()

// memCache is an in-process stand-in for the Redis cache.
type memCache struct {
	values map[string]string
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]string)}
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	if v, ok := c.values[key]; ok {
		return v, nil
	}
	return "", cache.ErrMiss
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.values[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

func newAdRepo(t *testing.T) (AdRepository, sqlmock.Sqlmock, *memCache, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mc := newMemCache()
	return NewMysqlAdRepository(db, mc, testMetrics), mock, mc, func() { db.Close() }
}

func adRows(ad *domain.Advertisement) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "description", "media",
		"target_audience", "user_id", "created_at", "updated_at"}).
		AddRow(ad.ID, ad.Title, ad.Description, ad.Media, ad.TargetAudience,
			ad.UserID, ad.CreatedAt, ad.UpdatedAt)
}

func TestAdRepository_CreateAd(t *testing.T) {
	repo, mock, _, cleanup := newAdRepo(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO advertisements")).
		WithArgs(sqlmock.AnyArg(), "Spring Sale", "desc", "https://cdn.example/banner.png", "everyone", "user-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+adColumns+" FROM advertisements WHERE id = ?")).
		WillReturnRows(adRows(&domain.Advertisement{
			ID: cuid.New(), Title: "Spring Sale", Description: "desc",
			Media: "https://cdn.example/banner.png", TargetAudience: "everyone",
			UserID: "user-1", CreatedAt: now, UpdatedAt: now,
		}))

	created, err := repo.CreateAd(context.Background(), &domain.Advertisement{
		Title:          "Spring Sale",
		Description:    "desc",
		Media:          "https://cdn.example/banner.png",
		TargetAudience: "everyone",
		UserID:         "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Spring Sale", created.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdRepository_GetAdByIDCaches(t *testing.T) {
	repo, mock, mc, cleanup := newAdRepo(t)
	defer cleanup()

	id := cuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+adColumns+" FROM advertisements WHERE id = ?")).
		WithArgs(id).
		WillReturnRows(adRows(&domain.Advertisement{
			ID: id, Title: "Spring Sale", UserID: "user-1", CreatedAt: now, UpdatedAt: now,
		}))

	first, err := repo.GetAdByID(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, mc.values, "ad:"+id)

	// The second read is served from cache; no further query is expected.
	second, err := repo.GetAdByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdRepository_GetAdByIDNotFound(t *testing.T) {
	repo, mock, _, cleanup := newAdRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + adColumns + " FROM advertisements WHERE id = ?")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAdByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAdRepository_UpdateAdScopedToOwner(t *testing.T) {
	repo, mock, _, cleanup := newAdRepo(t)
	defer cleanup()

	mock.ExpectExec("UPDATE advertisements").
		WithArgs("New Title", "desc", "media", "everyone", "ad-1", "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateAd(context.Background(), &domain.Advertisement{
		ID: "ad-1", Title: "New Title", Description: "desc",
		Media: "media", TargetAudience: "everyone", UserID: "intruder",
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdRepository_DeleteAdInvalidatesCache(t *testing.T) {
	repo, mock, mc, cleanup := newAdRepo(t)
	defer cleanup()

	mc.values["ad:ad-1"] = "{}"

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM advertisements WHERE id = ? AND user_id = ?")).
		WithArgs("ad-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DeleteAd(context.Background(), "user-1", "ad-1")
	require.NoError(t, err)
	assert.NotContains(t, mc.values, "ad:ad-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
