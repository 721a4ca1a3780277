package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/metrics"
	"github.com/raoulx24/share-archiver/internal/share"
)

// Operation labels used for metrics.
const (
	OpCreate = "create"
	OpList   = "list"
	OpDelete = "delete"
	OpPrune  = "prune"
)

// Manager creates, lists and deletes the snapshots it owns.
type Manager struct {
	svc     share.Service
	key     string
	log     logging.Logger
	metrics metrics.Metrics
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithMetrics(mt metrics.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithClock overrides the clock used for the metadata tag value.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager returns a manager tagging its snapshots with metadataKey.
func NewManager(svc share.Service, metadataKey string, opts ...Option) (*Manager, error) {
	if svc == nil {
		return nil, archerrors.Validationf("snapshot manager needs a share service")
	}
	if strings.TrimSpace(metadataKey) == "" {
		return nil, archerrors.Validationf("snapshot metadata key must not be empty")
	}

	m := &Manager{
		svc:     svc,
		key:     metadataKey,
		log:     logging.Discard(),
		metrics: metrics.Noop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Key returns the metadata key marking managed snapshots.
func (m *Manager) Key() string {
	return m.key
}

func (m *Manager) observe(op string, err error) {
	m.metrics.IncSnapshotOp(op, metrics.Status(err, archerrors.IsCanceled(err)))
}

// CreateManaged snapshots shareName, tagging it with the creation time.
// It fails with ErrNotFound when the share does not exist.
func (m *Manager) CreateManaged(ctx context.Context, shareName string) (snap Snapshot, err error) {
	defer func() { m.observe(OpCreate, err) }()

	ok, err := m.svc.Exists(ctx, shareName)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "checking share %q", shareName)
	}
	if !ok {
		return Snapshot{}, archerrors.NotFoundf("share %q", shareName)
	}

	md := map[string]string{m.key: m.now().UTC().Format(time.RFC3339)}
	info, err := m.svc.CreateSnapshot(ctx, shareName, md)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "creating snapshot of %q", shareName)
	}

	snap = fromInfo(info)
	if snap.Metadata == nil {
		snap.Metadata = md
	}
	m.log.Info("snapshot created", "share", shareName, "snapshot", share.FormatSnapshotTime(snap.Time))
	return snap, nil
}

// ListManaged returns every managed snapshot of shareName, in no particular order.
func (m *Manager) ListManaged(ctx context.Context, shareName string) (out []Snapshot, err error) {
	defer func() { m.observe(OpList, err) }()

	infos, err := m.svc.ListShares(ctx, shareName)
	if err != nil {
		return nil, errors.Wrapf(err, "listing snapshots of %q", shareName)
	}

	for _, i := range infos {
		if i.Name != shareName || !i.IsSnapshot() {
			continue
		}
		s := fromInfo(i)
		if s.HasKey(m.key) {
			out = append(out, s)
		}
	}
	m.log.Debug("managed snapshots listed", "share", shareName, "count", len(out))
	return out, nil
}

// DeleteManaged deletes the snapshot of shareName taken at t. It fails with
// ErrNotFound when there is no such snapshot and with ErrOwnership when the
// snapshot is not managed; nothing is deleted in either case.
func (m *Manager) DeleteManaged(ctx context.Context, shareName string, t time.Time) (err error) {
	defer func() { m.observe(OpDelete, err) }()

	info, err := m.svc.GetSnapshot(ctx, shareName, t)
	if err != nil {
		return errors.Wrapf(err, "looking up snapshot %s", Snapshot{Share: shareName, Time: t})
	}

	if !info.IsSnapshot() {
		return archerrors.NotFoundf("%s is not a snapshot", Snapshot{Share: shareName, Time: t})
	}
	s := fromInfo(info)
	if !s.HasKey(m.key) {
		return errors.Wrapf(archerrors.ErrOwnership, "snapshot %s has no %q metadata", s, m.key)
	}

	if err := m.svc.DeleteSnapshot(ctx, shareName, t); err != nil {
		return errors.Wrapf(err, "deleting snapshot %s", s)
	}
	m.log.Info("snapshot deleted", "share", shareName, "snapshot", share.FormatSnapshotTime(t))
	return nil
}

// Prune deletes the managed snapshots of shareName selected by policy.
// The first failing deletion aborts the prune. It returns the snapshots
// deleted so far.
func (m *Manager) Prune(ctx context.Context, shareName string, policy RetentionPolicy) (deleted []Snapshot, err error) {
	defer func() { m.observe(OpPrune, err) }()

	if policy == nil {
		return nil, archerrors.Validationf("prune needs a retention policy")
	}

	all, err := m.ListManaged(ctx, shareName)
	if err != nil {
		return nil, err
	}

	victims := policy.Select(all)
	m.log.Info("pruning snapshots", "share", shareName, "policy", policy.Description(),
		"managed", len(all), "deleting", len(victims))

	for _, s := range victims {
		if err := ctx.Err(); err != nil {
			return deleted, archerrors.Canceled(err)
		}
		if err := m.DeleteManaged(ctx, s.Share, s.Time); err != nil {
			return deleted, err
		}
		deleted = append(deleted, s)
	}
	return deleted, nil
}
