package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func createTestServer(t *testing.T, store Store, name string) *domain.ServerRecord {
	t.Helper()
	server := &domain.ServerRecord{
		ID:            uuid.NewString(),
		Name:          name,
		Host:          "203.0.113.10",
		Country:       "JP",
		Status:        domain.StatusActive,
		PricePerMonth: decimal.RequireFromString("19.99"),
		PurchaseDate:  "2025/01/01",
		EnabledDate:   "2025/01/02",
		UsesNATPool:   true,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.CreateServer(context.Background(), server))
	return server
}

// =============================================================================
// Server CRUD Tests
// =============================================================================

func TestCreateServer_Success(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	server := createTestServer(t, store, "tokyo-01")

	retrieved, err := store.GetServer(ctx, "tokyo-01")
	require.NoError(t, err)
	assert.Equal(t, server.ID, retrieved.ID)
	assert.Equal(t, server.Name, retrieved.Name)
	assert.Equal(t, server.Host, retrieved.Host)
	assert.Equal(t, domain.StatusActive, retrieved.Status)
	assert.True(t, retrieved.UsesNATPool)
	// Decimal round-trips exactly through the TEXT column.
	assert.Equal(t, "19.99", retrieved.PricePerMonth.String())
	// Legacy date strings come back byte-for-byte.
	assert.Equal(t, "2025/01/01", retrieved.PurchaseDate)
	assert.Equal(t, "2025/01/02", retrieved.EnabledDate)
}

func TestCreateServer_DuplicateName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestServer(t, store, "tokyo-01")

	duplicate := &domain.ServerRecord{
		ID:            uuid.NewString(),
		Name:          "tokyo-01",
		Status:        domain.StatusActive,
		PricePerMonth: decimal.NewFromInt(5),
	}
	err := store.CreateServer(ctx, duplicate)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestGetServer_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetServer(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateServer_Success(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	server := createTestServer(t, store, "tokyo-01")
	server.PricePerMonth = decimal.RequireFromString("24.50")
	server.Host = "203.0.113.99"

	require.NoError(t, store.UpdateServer(ctx, server))

	retrieved, err := store.GetServer(ctx, "tokyo-01")
	require.NoError(t, err)
	assert.Equal(t, "24.5", retrieved.PricePerMonth.String())
	assert.Equal(t, "203.0.113.99", retrieved.Host)
}

func TestUpdateServer_NotFound(t *testing.T) {
	store := setupTestStore(t)

	server := &domain.ServerRecord{
		ID:            uuid.NewString(),
		Name:          "ghost",
		Status:        domain.StatusActive,
		PricePerMonth: decimal.NewFromInt(5),
	}
	err := store.UpdateServer(context.Background(), server)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteServer(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestServer(t, store, "tokyo-01")
	require.NoError(t, store.DeleteServer(ctx, "tokyo-01"))

	_, err := store.GetServer(ctx, "tokyo-01")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.DeleteServer(ctx, "tokyo-01"), ErrNotFound)
}

func TestListServers_OrderAndStatusFilter(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestServer(t, store, "osaka-02")
	createTestServer(t, store, "tokyo-01")
	decommissioned := createTestServer(t, store, "nagoya-03")
	require.NoError(t, store.SetServerStatus(ctx, decommissioned.Name, domain.StatusDecommissioned,
		time.Date(2025, 3, 28, 10, 0, 0, 0, time.UTC)))

	all, err := store.ListServers(ctx, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "nagoya-03", all[0].Name)
	assert.Equal(t, "osaka-02", all[1].Name)
	assert.Equal(t, "tokyo-01", all[2].Name)

	active, err := store.ListServers(ctx, ListOptions{Status: domain.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestListAllServers_NotCappedByPageLimit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Well past the paginated listing's hard cap.
	const fleetSize = 1050
	err := store.WithTx(ctx, func(tx Store) error {
		for i := 0; i < fleetSize; i++ {
			server := &domain.ServerRecord{
				ID:            uuid.NewString(),
				Name:          fmt.Sprintf("node-%04d", i),
				Status:        domain.StatusActive,
				PricePerMonth: decimal.NewFromInt(10),
				PurchaseDate:  "2025/01/01",
				EnabledDate:   "2025/01/01",
			}
			if err := tx.CreateServer(ctx, server); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	paged, err := store.ListServers(ctx, ListOptions{Limit: fleetSize})
	require.NoError(t, err)
	assert.Len(t, paged, 1000)

	all, err := store.ListAllServers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, fleetSize)
}

func TestSetServerStatus_StampsAndClearsDecommissionDate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestServer(t, store, "tokyo-01")
	when := time.Date(2025, 3, 28, 10, 30, 0, 0, time.UTC)

	require.NoError(t, store.SetServerStatus(ctx, "tokyo-01", domain.StatusDecommissioned, when))
	retrieved, err := store.GetServer(ctx, "tokyo-01")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDecommissioned, retrieved.Status)
	assert.Equal(t, "2025/03/28", retrieved.DecommissionDate)

	// Reactivation clears the stamp.
	require.NoError(t, store.SetServerStatus(ctx, "tokyo-01", domain.StatusActive, when.Add(time.Hour)))
	retrieved, err = store.GetServer(ctx, "tokyo-01")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, retrieved.Status)
	assert.Empty(t, retrieved.DecommissionDate)
}

func TestSetServerCharge_WriteThrough(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestServer(t, store, "tokyo-01")
	require.NoError(t, store.SetServerCharge(ctx, "tokyo-01", "15d 23h 59m", decimal.RequireFromString("10.32")))

	retrieved, err := store.GetServer(ctx, "tokyo-01")
	require.NoError(t, err)
	assert.Equal(t, "15d 23h 59m", retrieved.LastUsageLabel)
	assert.Equal(t, "10.32", retrieved.LastTotalPrice.String())
}

// =============================================================================
// Billing Period Tests
// =============================================================================

func TestBillingPeriod_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetBillingPeriod(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetBillingPeriod(ctx, domain.Period{Year: 2025, Month: 3}))
	period, err := store.GetBillingPeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Period{Year: 2025, Month: 3}, period)

	// Single-row upsert: a second set replaces, not duplicates.
	require.NoError(t, store.SetBillingPeriod(ctx, domain.Period{Year: 2025, Month: 4}))
	period, err = store.GetBillingPeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Period{Year: 2025, Month: 4}, period)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	errBoom := assert.AnError
	err := store.WithTx(ctx, func(tx Store) error {
		server := &domain.ServerRecord{
			ID:            uuid.NewString(),
			Name:          "tx-server",
			Status:        domain.StatusActive,
			PricePerMonth: decimal.NewFromInt(5),
		}
		if err := tx.CreateServer(ctx, server); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = store.GetServer(ctx, "tx-server")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx_Commit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx Store) error {
		server := &domain.ServerRecord{
			ID:            uuid.NewString(),
			Name:          "tx-server",
			Status:        domain.StatusActive,
			PricePerMonth: decimal.NewFromInt(5),
		}
		if err := tx.CreateServer(ctx, server); err != nil {
			return err
		}
		return tx.SetBillingPeriod(ctx, domain.Period{Year: 2025, Month: 3})
	})
	require.NoError(t, err)

	_, err = store.GetServer(ctx, "tx-server")
	assert.NoError(t, err)
}
