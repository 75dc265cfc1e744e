package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")

	snapshot := &FleetSnapshot{
		Servers: []domain.ServerRecord{
			{
				Name:             "tokyo-01",
				Host:             "203.0.113.10",
				Status:           domain.StatusActive,
				PricePerMonth:    decimal.RequireFromString("19.99"),
				PurchaseDate:     "2025/01/01",
				EnabledDate:      "2025-01-02 08:30:00",
				UsesNATPool:      true,
				LastUsageLabel:   "30d 23h 59m",
				LastTotalPrice:   decimal.RequireFromString("19.99"),
			},
			{
				Name:             "osaka-02",
				Status:           domain.StatusDecommissioned,
				PricePerMonth:    decimal.NewFromInt(5),
				EnabledDate:      "2024/11/20",
				DecommissionDate: "2025/02/10",
			},
		},
		TotalBill: "24.99",
		NATFee:    "0.83",
	}

	require.NoError(t, WriteSnapshot(path, snapshot))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, loaded.Servers, 2)
	assert.Equal(t, "tokyo-01", loaded.Servers[0].Name)
	// Date strings survive in whatever legacy format they were written.
	assert.Equal(t, "2025-01-02 08:30:00", loaded.Servers[0].EnabledDate)
	assert.Equal(t, "2025/02/10", loaded.Servers[1].DecommissionDate)
	assert.True(t, loaded.Servers[0].PricePerMonth.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, "24.99", loaded.TotalBill)
}

func TestSnapshot_LegacyKeysAccepted(t *testing.T) {
	// A file written by the old tooling, with its original key spelling.
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	doc := `vps_servers:
  - name: tokyo-01
    ip_address: 203.0.113.10
    status: active
    price_per_month: 19.99
    start_date: 2025/01/02
    cancel_date: ""
    use_nat: true
    usage_period: 30d 23h 59m
    total_price: 19.99
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, loaded.Servers, 1)
	srv := loaded.Servers[0]
	assert.Equal(t, "203.0.113.10", srv.Host)
	assert.Equal(t, "2025/01/02", srv.EnabledDate)
	assert.True(t, srv.UsesNATPool)
	assert.Equal(t, "30d 23h 59m", srv.LastUsageLabel)
}

func TestImportSnapshot_UpsertsInOneTransaction(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	existing := createTestServer(t, store, "tokyo-01")

	snapshot := &FleetSnapshot{
		Servers: []domain.ServerRecord{
			{
				Name:          "tokyo-01",
				Host:          "203.0.113.99",
				PricePerMonth: decimal.RequireFromString("24.50"),
				EnabledDate:   "2025/01/02",
				UsesNATPool:   true,
			},
			{
				Name:          "osaka-02",
				PricePerMonth: decimal.NewFromInt(5),
				EnabledDate:   "2024/11/20",
			},
		},
	}

	created, updated, err := ImportSnapshot(ctx, store, snapshot)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)

	// The known name keeps its identity and gains the imported fields.
	srv, err := store.GetServer(ctx, "tokyo-01")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, srv.ID)
	assert.Equal(t, "203.0.113.99", srv.Host)
	assert.Equal(t, "24.5", srv.PricePerMonth.String())

	// Legacy files carry no status; the import defaults it.
	srv, err = store.GetServer(ctx, "osaka-02")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, srv.Status)
	assert.NotEmpty(t, srv.ID)
}

func TestImportSnapshot_BadRecordRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	snapshot := &FleetSnapshot{
		Servers: []domain.ServerRecord{
			{Name: "good-01", PricePerMonth: decimal.NewFromInt(5), EnabledDate: "2024/11/20"},
			{Name: "", PricePerMonth: decimal.NewFromInt(5)},
		},
	}

	_, _, err := ImportSnapshot(ctx, store, snapshot)
	require.ErrorIs(t, err, ErrInvalidData)

	_, err = store.GetServer(ctx, "good-01")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuildFleetSnapshot_CoversWholeFleet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestServer(t, store, "tokyo-01")
	createTestServer(t, store, "osaka-02")

	snapshot, err := BuildFleetSnapshot(ctx, store)
	require.NoError(t, err)
	require.Len(t, snapshot.Servers, 2)
	assert.Equal(t, "osaka-02", snapshot.Servers[0].Name)
}

func TestReadSnapshot_Missing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadSnapshot_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vps_servers: [unclosed"), 0o644))

	_, err := ReadSnapshot(path)
	assert.ErrorIs(t, err, ErrInvalidData)
}
