package service

import (
	"context"
	"testing"
	"time"

	"adserver/internal/domain"
	"adserver/internal/pricing"
	"adserver/pkg/cuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type earningsFixture struct {
	svc         EarningsService
	earnings    *fakeEarningsRepo
	userID      string
	publisherID string
}

func newEarningsFixture(t *testing.T) *earningsFixture {
	t.Helper()

	publishers := newFakePublisherRepo()
	earnings := newFakeEarningsRepo()
	userID := "01hvx0000000000000000000us"

	p, err := publishers.CreatePublisher(context.Background(), &domain.Publisher{
		Platform: domain.PlatformWebsite,
		UserID:   userID,
	})
	require.NoError(t, err)

	rateCard, err := pricing.NewManager("")
	require.NoError(t, err)

	return &earningsFixture{
		svc:         NewEarningsService(earnings, publishers, rateCard, testMetrics),
		earnings:    earnings,
		userID:      userID,
		publisherID: p.ID,
	}
}

func (fx *earningsFixture) seedRow(month time.Time, share float64, status domain.WithdrawalStatus) *domain.PublisherEarnings {
	e := &domain.PublisherEarnings{
		ID:               cuid.New(),
		PublisherID:      fx.publisherID,
		Month:            MonthStart(month),
		PublisherShare:   share,
		WithdrawalStatus: status,
	}
	fx.earnings.rows[e.ID] = e
	return e
}

func TestMonthStart(t *testing.T) {
	in := time.Date(2025, 3, 17, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), MonthStart(in))
}

func TestEarningsService_RequestWithdrawal(t *testing.T) {
	fx := newEarningsFixture(t)
	ctx := context.Background()

	row := fx.seedRow(time.Now().UTC().AddDate(0, -2, 0), 150, domain.WithdrawalPending)

	updated, err := fx.svc.RequestWithdrawal(ctx, fx.userID, row.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalRequested, updated.WithdrawalStatus)
	assert.NotNil(t, updated.WithdrawalRequestedAt)
}

func TestEarningsService_RequestWithdrawalHoldoff(t *testing.T) {
	fx := newEarningsFixture(t)

	// The current month has not closed yet.
	row := fx.seedRow(time.Now().UTC(), 150, domain.WithdrawalPending)

	_, err := fx.svc.RequestWithdrawal(context.Background(), fx.userID, row.ID)
	assert.ErrorIs(t, err, ErrWithdrawal)
}

func TestEarningsService_RequestWithdrawalBelowMinimum(t *testing.T) {
	fx := newEarningsFixture(t)

	row := fx.seedRow(time.Now().UTC().AddDate(0, -2, 0), 40, domain.WithdrawalPending)

	_, err := fx.svc.RequestWithdrawal(context.Background(), fx.userID, row.ID)
	assert.ErrorIs(t, err, ErrWithdrawal)
}

func TestEarningsService_RequestWithdrawalOnlyFromPending(t *testing.T) {
	fx := newEarningsFixture(t)

	row := fx.seedRow(time.Now().UTC().AddDate(0, -2, 0), 150, domain.WithdrawalApproved)

	_, err := fx.svc.RequestWithdrawal(context.Background(), fx.userID, row.ID)
	assert.ErrorIs(t, err, ErrWithdrawal)
}

func TestEarningsService_RequestWithdrawalOwnership(t *testing.T) {
	fx := newEarningsFixture(t)

	row := fx.seedRow(time.Now().UTC().AddDate(0, -2, 0), 150, domain.WithdrawalPending)

	_, err := fx.svc.RequestWithdrawal(context.Background(), "01hvx000000000000000other", row.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestEarningsService_ProcessWithdrawal(t *testing.T) {
	fx := newEarningsFixture(t)
	ctx := context.Background()

	row := fx.seedRow(time.Now().UTC().AddDate(0, -2, 0), 150, domain.WithdrawalRequested)

	approved, err := fx.svc.ProcessWithdrawal(ctx, row.ID, true, "paid via bank transfer")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalApproved, approved.WithdrawalStatus)
	assert.Equal(t, "paid via bank transfer", approved.WithdrawalNotes)

	// Already processed rows cannot be processed again.
	_, err = fx.svc.ProcessWithdrawal(ctx, row.ID, false, "")
	assert.ErrorIs(t, err, ErrWithdrawal)
}

func TestEarningsService_ProcessWithdrawalReject(t *testing.T) {
	fx := newEarningsFixture(t)

	row := fx.seedRow(time.Now().UTC().AddDate(0, -2, 0), 150, domain.WithdrawalRequested)

	rejected, err := fx.svc.ProcessWithdrawal(context.Background(), row.ID, false, "suspicious traffic")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalRejected, rejected.WithdrawalStatus)
}

func TestEarningsService_ProcessWithdrawalOnlyRequested(t *testing.T) {
	fx := newEarningsFixture(t)

	row := fx.seedRow(time.Now().UTC().AddDate(0, -2, 0), 150, domain.WithdrawalPending)

	_, err := fx.svc.ProcessWithdrawal(context.Background(), row.ID, true, "")
	assert.ErrorIs(t, err, ErrWithdrawal)
}

func TestEarningsService_ListRequestedWithdrawals(t *testing.T) {
	fx := newEarningsFixture(t)

	fx.seedRow(time.Now().UTC().AddDate(0, -2, 0), 150, domain.WithdrawalRequested)
	fx.seedRow(time.Now().UTC().AddDate(0, -3, 0), 150, domain.WithdrawalPending)

	list, err := fx.svc.ListRequestedWithdrawals(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
