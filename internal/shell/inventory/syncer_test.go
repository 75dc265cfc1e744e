package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/vpsfleet/internal/core/domain"
	"github.com/artpar/vpsfleet/internal/shell/store"
)

// fakeSource serves a canned instance list.
type fakeSource struct {
	name      string
	instances []Instance
	err       error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) ListInstances(ctx context.Context) ([]Instance, error) {
	return f.instances, f.err
}

func setupSyncer(t *testing.T, sources ...Source) (*Syncer, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	syncer := NewSyncer(SyncerConfig{Store: st, Sources: sources})
	syncer.now = func() time.Time { return time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC) }
	return syncer, st
}

func addRecord(t *testing.T, st store.Store, name string, status domain.ServerStatus) {
	t.Helper()
	require.NoError(t, st.CreateServer(context.Background(), &domain.ServerRecord{
		ID:            uuid.NewString(),
		Name:          name,
		Status:        status,
		PricePerMonth: decimal.NewFromInt(20),
		PurchaseDate:  "2025/01/01",
		EnabledDate:   "2025/01/01",
	}))
}

func TestSync_CreatesMissingRecords(t *testing.T) {
	source := &fakeSource{name: "hetzner", instances: []Instance{
		{ProviderID: "42", Name: "tokyo-01", PublicIP: "203.0.113.10", Country: "JP",
			CreatedAt: time.Date(2025, 2, 14, 8, 30, 0, 0, time.UTC)},
	}}
	syncer, st := setupSyncer(t, source)
	ctx := context.Background()

	result, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	srv, err := st.GetServer(ctx, "tokyo-01")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, srv.Status)
	assert.Equal(t, "203.0.113.10", srv.Host)
	assert.Equal(t, "2025/02/14", srv.PurchaseDate)
	assert.Equal(t, "2025/02/14 08:30:00", srv.EnabledDate)
	// Price is unknown at discovery time; billing treats zero as free.
	assert.True(t, srv.PricePerMonth.IsZero())
}

func TestSync_UpdatesHostAndPreservesBillingFields(t *testing.T) {
	source := &fakeSource{name: "hetzner", instances: []Instance{
		{Name: "tokyo-01", PublicIP: "198.51.100.5"},
	}}
	syncer, st := setupSyncer(t, source)
	ctx := context.Background()
	addRecord(t, st, "tokyo-01", domain.StatusActive)

	result, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	srv, err := st.GetServer(ctx, "tokyo-01")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.5", srv.Host)
	assert.Equal(t, "2025/01/01", srv.PurchaseDate)
	assert.Equal(t, "20", srv.PricePerMonth.String())
}

func TestSync_DecommissionsVanishedServers(t *testing.T) {
	source := &fakeSource{name: "hetzner", instances: []Instance{
		{Name: "tokyo-01", PublicIP: "203.0.113.10"},
	}}
	syncer, st := setupSyncer(t, source)
	ctx := context.Background()
	addRecord(t, st, "tokyo-01", domain.StatusActive)
	addRecord(t, st, "gone-02", domain.StatusActive)

	result, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Decommissioned)

	srv, err := st.GetServer(ctx, "gone-02")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDecommissioned, srv.Status)
	assert.Equal(t, "2025/03/20", srv.DecommissionDate)
}

func TestSync_SourceFailureNeverDecommissions(t *testing.T) {
	healthy := &fakeSource{name: "hetzner", instances: []Instance{{Name: "tokyo-01"}}}
	broken := &fakeSource{name: "aws", err: errors.New("throttled")}
	syncer, st := setupSyncer(t, healthy, broken)
	ctx := context.Background()
	addRecord(t, st, "gone-02", domain.StatusActive)

	result, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Decommissioned)

	srv, err := st.GetServer(ctx, "gone-02")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, srv.Status)
}

func TestSync_ReactivatesResurrectedServer(t *testing.T) {
	source := &fakeSource{name: "hetzner", instances: []Instance{
		{Name: "tokyo-01", PublicIP: "203.0.113.10"},
	}}
	syncer, st := setupSyncer(t, source)
	ctx := context.Background()

	addRecord(t, st, "tokyo-01", domain.StatusActive)
	require.NoError(t, st.SetServerStatus(ctx, "tokyo-01", domain.StatusDecommissioned,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))

	_, err := syncer.Sync(ctx)
	require.NoError(t, err)

	srv, err := st.GetServer(ctx, "tokyo-01")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, srv.Status)
	assert.Empty(t, srv.DecommissionDate)
}
