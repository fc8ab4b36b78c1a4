package service

import (
	"context"
	"testing"

	"adserver/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingService_CreateOncePerUser(t *testing.T) {
	ctx := context.Background()
	svc := NewBillingService(newFakeBillingRepo(), testMetrics)

	created, err := svc.CreateBilling(ctx, "user-1", &domain.BillingData{
		BillingAddress: "1 Main St",
		Currency:       "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", created.UserID)

	_, err = svc.CreateBilling(ctx, "user-1", &domain.BillingData{
		BillingAddress: "2 Main St",
		Currency:       "SAR",
	})
	assert.ErrorIs(t, err, ErrDuplicateBilling)
}

func TestBillingService_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewBillingService(newFakeBillingRepo(), testMetrics)

	_, err := svc.CreateBilling(ctx, "user-1", &domain.BillingData{Currency: "USD"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateBilling(ctx, "user-1", &domain.BillingData{
		BillingAddress: "1 Main St",
		Currency:       "EUR",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBillingService_GetAndUpdate(t *testing.T) {
	ctx := context.Background()
	svc := NewBillingService(newFakeBillingRepo(), testMetrics)

	_, err := svc.GetBilling(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CreateBilling(ctx, "user-1", &domain.BillingData{
		BillingAddress: "1 Main St",
		Currency:       "USD",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateBilling(ctx, "user-1", &domain.BillingData{
		BillingAddress: "9 Side St",
		Currency:       "SAR",
	})
	require.NoError(t, err)
	assert.Equal(t, "9 Side St", updated.BillingAddress)
	assert.Equal(t, "SAR", updated.Currency)
}

func TestBillingService_PartialUpdate(t *testing.T) {
	ctx := context.Background()
	svc := NewBillingService(newFakeBillingRepo(), testMetrics)

	_, err := svc.CreateBilling(ctx, "user-1", &domain.BillingData{
		BillingAddress: "1 Main St",
		TaxID:          "TAX-1",
		Currency:       "USD",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateBilling(ctx, "user-1", &domain.BillingData{
		BillingAddress: "9 Side St",
	})
	require.NoError(t, err)
	assert.Equal(t, "9 Side St", updated.BillingAddress)
	assert.Equal(t, "TAX-1", updated.TaxID)
	assert.Equal(t, "USD", updated.Currency)

	_, err = svc.UpdateBilling(ctx, "user-1", &domain.BillingData{Currency: "EUR"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
