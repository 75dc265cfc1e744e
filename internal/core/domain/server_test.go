package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validServer() *ServerRecord {
	return &ServerRecord{
		Name:          "tokyo-01",
		Status:        StatusActive,
		PricePerMonth: decimal.NewFromInt(20),
		PurchaseDate:  "2025/01/01",
		EnabledDate:   "2025/01/01",
	}
}

func TestServerValidate_OK(t *testing.T) {
	assert.NoError(t, validServer().Validate())
}

func TestServerValidate_Rejections(t *testing.T) {
	srv := validServer()
	srv.Name = ""
	assert.ErrorIs(t, srv.Validate(), ErrServerNameRequired)

	srv = validServer()
	srv.PricePerMonth = decimal.NewFromInt(-1)
	assert.ErrorIs(t, srv.Validate(), ErrPriceNegative)

	srv = validServer()
	srv.Status = "broken"
	assert.ErrorIs(t, srv.Validate(), ErrStatusInvalid)

	srv = validServer()
	srv.Status = StatusDecommissioned
	srv.DecommissionDate = "2024/12/01"
	assert.ErrorIs(t, srv.Validate(), ErrDecommissionBeforePurchase)
}

func TestServerValidate_UnparseableDatesAreNotValidationFailures(t *testing.T) {
	srv := validServer()
	srv.Status = StatusDecommissioned
	srv.DecommissionDate = "garbage"
	assert.NoError(t, srv.Validate())
}

func TestBillingStartDate_PurchaseFallsBackToEnabled(t *testing.T) {
	srv := validServer()
	srv.PurchaseDate = ""
	srv.EnabledDate = "2025/02/10"
	got, ok := srv.BillingStartDate()
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), got)

	// A recorded purchase date wins even with an enabled date present; an
	// unparseable one is not silently papered over.
	srv.PurchaseDate = "garbage"
	_, ok = srv.BillingStartDate()
	assert.False(t, ok)

	srv.PurchaseDate = ""
	srv.EnabledDate = ""
	_, ok = srv.BillingStartDate()
	assert.False(t, ok)
}
