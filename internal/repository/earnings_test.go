package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"adserver/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEarningsRepo(t *testing.T) (EarningsRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewMysqlEarningsRepository(db, testMetrics), mock, func() { db.Close() }
}

func TestEarningsRepository_AddEventEarningsUpsertsCounter(t *testing.T) {
	repo, mock, cleanup := newEarningsRepo(t)
	defer cleanup()

	month := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("ON DUPLICATE KEY UPDATE\\s+total_clicks = total_clicks \\+ 1").
		WithArgs(sqlmock.AnyArg(), "pub-1", month, 0.09, 0.0585, 0.0315).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AddEventEarnings(context.Background(), "pub-1", month,
		domain.EventClick, 0.09, 0.0585, 0.0315)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEarningsRepository_AddEventEarningsUnknownType(t *testing.T) {
	repo, _, cleanup := newEarningsRepo(t)
	defer cleanup()

	err := repo.AddEventEarnings(context.Background(), "pub-1",
		time.Now(), domain.EventType("hover"), 0, 0, 0)
	assert.Error(t, err)
}

func TestEarningsRepository_GetMonthlyEarningsNotFound(t *testing.T) {
	repo, mock, cleanup := newEarningsRepo(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .+ FROM publisher_earnings WHERE publisher_id").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetMonthlyEarnings(context.Background(), "pub-1",
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEarningsRepository_MarkWithdrawalRequestedNotFound(t *testing.T) {
	repo, mock, cleanup := newEarningsRepo(t)
	defer cleanup()

	mock.ExpectExec("UPDATE publisher_earnings").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkWithdrawalRequested(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
