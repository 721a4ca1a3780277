package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/metrics"
	"github.com/raoulx24/share-archiver/internal/retention"
	"github.com/raoulx24/share-archiver/internal/share"
	"github.com/raoulx24/share-archiver/internal/share/sharetest"
	"github.com/raoulx24/share-archiver/internal/snapshot"
)

const key = "AzureShareBackupSnapshotTime"

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newManager(t *testing.T, svc *sharetest.Service, opts ...snapshot.Option) *snapshot.Manager {
	t.Helper()
	opts = append([]snapshot.Option{snapshot.WithLogger(logging.ForTest(t))}, opts...)
	m, err := snapshot.NewManager(svc, key, opts...)
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	_, err := snapshot.NewManager(sharetest.New(), "  ")
	assert.True(t, errors.Is(err, archerrors.ErrValidation))

	_, err = snapshot.NewManager(nil, key)
	assert.True(t, errors.Is(err, archerrors.ErrValidation))
}

func TestCreateManaged(t *testing.T) {
	svc := sharetest.New()
	svc.AddShare("data")
	m := newManager(t, svc, snapshot.WithClock(func() time.Time { return t0 }))

	snap, err := m.CreateManaged(context.Background(), "data")
	require.NoError(t, err)

	assert.Equal(t, "data", snap.Share)
	assert.Equal(t, "2024-03-01T08:00:00Z", snap.Metadata[key])
	assert.True(t, svc.HasSnapshot("data", snap.Time))
	assert.True(t, snap.HasKey(key))
}

func TestCreateManaged_MissingShare(t *testing.T) {
	svc := sharetest.New()
	m := newManager(t, svc)

	_, err := m.CreateManaged(context.Background(), "nope")
	assert.True(t, errors.Is(err, archerrors.ErrNotFound))
	assert.Zero(t, svc.Calls("CreateSnapshot"))
}

func TestListManaged_FiltersOwnershipAndName(t *testing.T) {
	svc := sharetest.New()
	svc.AddSnapshot("data", t0, map[string]string{key: "x"})
	svc.AddSnapshot("data", t0.Add(time.Hour), map[string]string{"azuresharebackupsnapshottime": "x"})
	svc.AddSnapshot("data", t0.Add(2*time.Hour), map[string]string{"other": "y"})
	svc.AddSnapshot("data", t0.Add(3*time.Hour), nil)
	svc.AddSnapshot("data2", t0, map[string]string{key: "x"})

	got, err := newManager(t, svc).ListManaged(context.Background(), "data")
	require.NoError(t, err)

	var times []time.Time
	for _, s := range got {
		assert.Equal(t, "data", s.Share)
		times = append(times, s.Time)
	}
	assert.ElementsMatch(t, []time.Time{t0, t0.Add(time.Hour)}, times)
}

func TestDeleteManaged(t *testing.T) {
	svc := sharetest.New()
	svc.AddSnapshot("data", t0, map[string]string{key: "x"})

	require.NoError(t, newManager(t, svc).DeleteManaged(context.Background(), "data", t0))
	assert.False(t, svc.HasSnapshot("data", t0))
}

func TestDeleteManaged_RefusesUnmanaged(t *testing.T) {
	svc := sharetest.New()
	svc.AddSnapshot("data", t0, map[string]string{"createdBy": "someone else"})

	err := newManager(t, svc).DeleteManaged(context.Background(), "data", t0)

	require.Error(t, err)
	assert.True(t, errors.Is(err, archerrors.ErrOwnership))
	assert.True(t, svc.HasSnapshot("data", t0))
	assert.Zero(t, svc.Calls("DeleteSnapshot"))
}

func TestDeleteManaged_NotFound(t *testing.T) {
	svc := sharetest.New()
	svc.AddShare("data")
	m := newManager(t, svc)

	err := m.DeleteManaged(context.Background(), "data", t0)
	assert.True(t, errors.Is(err, archerrors.ErrNotFound))

	err = m.DeleteManaged(context.Background(), "missing", t0)
	assert.True(t, errors.Is(err, archerrors.ErrNotFound))
	assert.Zero(t, svc.Calls("DeleteSnapshot"))
}

// liveShareLookup answers every snapshot lookup with the live share.
type liveShareLookup struct {
	*sharetest.Service
}

func (l liveShareLookup) GetSnapshot(_ context.Context, name string, _ time.Time) (share.Info, error) {
	return share.Info{Name: name, Metadata: map[string]string{key: "x"}}, nil
}

func TestDeleteManaged_RefusesLiveShare(t *testing.T) {
	svc := sharetest.New()
	svc.AddShare("data")
	m, err := snapshot.NewManager(liveShareLookup{svc}, key, snapshot.WithLogger(logging.ForTest(t)))
	require.NoError(t, err)

	err = m.DeleteManaged(context.Background(), "data", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, archerrors.ErrNotFound))
	assert.Zero(t, svc.Calls("DeleteSnapshot"))
}

func TestPrune_KeepsLatestTwo(t *testing.T) {
	svc := sharetest.New()
	var ts []time.Time
	for i := range 5 {
		at := t0.Add(time.Duration(i) * 24 * time.Hour)
		ts = append(ts, at)
		svc.AddSnapshot("data", at, map[string]string{key: "x"})
	}
	svc.AddSnapshot("data", t0.Add(-time.Hour), map[string]string{"foreign": "1"})

	reg := prometheus.NewRegistry()
	prom := metrics.NewProm("test", reg)
	m := newManager(t, svc, snapshot.WithMetrics(prom))

	policy, err := retention.RetainLatest(2)
	require.NoError(t, err)
	deleted, err := m.Prune(context.Background(), "data", policy)
	require.NoError(t, err)

	var deletedTimes []time.Time
	for _, s := range deleted {
		deletedTimes = append(deletedTimes, s.Time)
	}
	assert.ElementsMatch(t, ts[:3], deletedTimes)
	assert.Equal(t, []time.Time{t0.Add(-time.Hour), ts[3], ts[4]}, svc.Snapshots("data"))

	series, err := testutil.GatherAndCount(reg, "test_snapshot_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series, "list, delete and prune, all ok")

	again, err := m.Prune(context.Background(), "data", policy)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestPrune_FirstFailureAborts(t *testing.T) {
	svc := sharetest.New()
	for i := range 3 {
		svc.AddSnapshot("data", t0.Add(time.Duration(i)*time.Hour), map[string]string{key: "x"})
	}
	boom := errors.New("throttled")
	svc.DeleteErr = boom

	policy, err := retention.RetainLatest(0)
	require.NoError(t, err)
	deleted, err := newManager(t, svc).Prune(context.Background(), "data", policy)

	assert.True(t, errors.Is(err, boom))
	assert.Empty(t, deleted)
	assert.Equal(t, 1, svc.Calls("DeleteSnapshot"))
	assert.Len(t, svc.Snapshots("data"), 3)
}

func TestPrune_NilPolicy(t *testing.T) {
	_, err := newManager(t, sharetest.New()).Prune(context.Background(), "data", nil)
	assert.True(t, errors.Is(err, archerrors.ErrValidation))
}

func TestSnapshot_String(t *testing.T) {
	s := snapshot.Snapshot{Share: "data", Time: t0}
	assert.Equal(t, "data@2024-03-01T08:00:00.0000000Z", s.String())
}
