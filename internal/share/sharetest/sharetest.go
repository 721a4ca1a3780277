// Package sharetest provides an in-memory share.Service for tests.
package sharetest

import (
	"bytes"
	"context"
	"io"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/share"
)

type node struct {
	name     string
	dir      bool
	children []*node
	data     []byte
	mod      time.Time
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *node) clone() *node {
	c := &node{name: n.name, dir: n.dir, data: n.data, mod: n.mod}
	for _, ch := range n.children {
		c.children = append(c.children, ch.clone())
	}
	return c
}

type snapshotState struct {
	root     *node
	metadata map[string]string
}

type shareState struct {
	root      *node
	metadata  map[string]string
	snapshots map[time.Time]*snapshotState
}

// Service is an in-memory share.Service. The zero value is not usable; call New.
type Service struct {
	mu     sync.Mutex
	shares map[string]*shareState
	calls  map[string]int

	// PageSize bounds the number of items per listing page.
	PageSize int
	// Now stamps new snapshots. Consecutive snapshots are forced to be distinct.
	Now func() time.Time
	// OpenHook runs before a file is opened; a non-nil error fails the open.
	OpenHook func(ctx context.Context, dir []string, name string) error
	// DeleteErr, when set, is returned by DeleteSnapshot without deleting.
	DeleteErr error

	last time.Time
}

// New returns an empty service listing two items per page.
func New() *Service {
	return &Service{
		shares:   make(map[string]*shareState),
		calls:    make(map[string]int),
		PageSize: 2,
		Now:      time.Now,
	}
}

// AddShare creates an empty live share.
func (s *Service) AddShare(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shares[name]; !ok {
		s.shares[name] = &shareState{
			root:      &node{dir: true},
			snapshots: make(map[time.Time]*snapshotState),
		}
	}
}

// Mkdir creates the slash-separated directory path in the live share.
func (s *Service) Mkdir(shareName, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirLocked(shareName, splitPath(path))
}

// PutFile writes a file into the live share, creating parent directories.
func (s *Service) PutFile(shareName, path string, data []byte, mod time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := splitPath(path)
	dir := s.mkdirLocked(shareName, parts[:len(parts)-1])
	name := parts[len(parts)-1]
	if f := dir.child(name); f != nil {
		f.data, f.mod = data, mod
		return
	}
	dir.children = append(dir.children, &node{name: name, data: data, mod: mod})
}

// AddSnapshot seeds a snapshot of the live share at t carrying metadata.
func (s *Service) AddSnapshot(shareName string, t time.Time, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirLocked(shareName, nil)
	st := s.shares[shareName]
	st.snapshots[t.UTC()] = &snapshotState{root: st.root.clone(), metadata: maps.Clone(metadata)}
}

// HasSnapshot reports whether the snapshot still exists.
func (s *Service) HasSnapshot(shareName string, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.shares[shareName]
	if !ok {
		return false
	}
	_, ok = st.snapshots[t.UTC()]
	return ok
}

// Snapshots returns the snapshot times of a share in ascending order.
func (s *Service) Snapshots(shareName string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	if st, ok := s.shares[shareName]; ok {
		for t := range st.snapshots {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Calls returns how many times the named operation was invoked.
func (s *Service) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Service) Exists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Exists"]++
	_, ok := s.shares[name]
	return ok, nil
}

func (s *Service) CreateSnapshot(_ context.Context, name string, metadata map[string]string) (share.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CreateSnapshot"]++

	st, ok := s.shares[name]
	if !ok {
		return share.Info{}, archerrors.NotFoundf("share %q", name)
	}

	t := s.Now().UTC().Truncate(100 * time.Nanosecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t

	st.snapshots[t] = &snapshotState{root: st.root.clone(), metadata: maps.Clone(metadata)}
	return share.Info{Name: name, Snapshot: t, Metadata: maps.Clone(metadata)}, nil
}

func (s *Service) ListShares(_ context.Context, prefix string) ([]share.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["ListShares"]++

	var out []share.Info
	for name, st := range s.shares {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, share.Info{Name: name, Metadata: maps.Clone(st.metadata)})
		for t, snap := range st.snapshots {
			out = append(out, share.Info{Name: name, Snapshot: t, Metadata: maps.Clone(snap.metadata)})
		}
	}
	return out, nil
}

func (s *Service) GetSnapshot(_ context.Context, name string, t time.Time) (share.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["GetSnapshot"]++

	snap, err := s.snapshotLocked(name, t)
	if err != nil {
		return share.Info{}, err
	}
	return share.Info{Name: name, Snapshot: t.UTC(), Metadata: maps.Clone(snap.metadata)}, nil
}

func (s *Service) DeleteSnapshot(_ context.Context, name string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["DeleteSnapshot"]++

	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, err := s.snapshotLocked(name, t); err != nil {
		return err
	}
	delete(s.shares[name].snapshots, t.UTC())
	return nil
}

func (s *Service) Tree(name string, t time.Time) share.Tree {
	return &tree{svc: s, share: name, snapshot: t.UTC()}
}

func (s *Service) snapshotLocked(name string, t time.Time) (*snapshotState, error) {
	st, ok := s.shares[name]
	if !ok {
		return nil, archerrors.NotFoundf("share %q", name)
	}
	snap, ok := st.snapshots[t.UTC()]
	if !ok {
		return nil, archerrors.NotFoundf("snapshot %q at %s", name, share.FormatSnapshotTime(t))
	}
	return snap, nil
}

func (s *Service) mkdirLocked(shareName string, parts []string) *node {
	st, ok := s.shares[shareName]
	if !ok {
		st = &shareState{root: &node{dir: true}, snapshots: make(map[time.Time]*snapshotState)}
		s.shares[shareName] = st
	}
	cur := st.root
	for _, p := range parts {
		next := cur.child(p)
		if next == nil {
			next = &node{name: p, dir: true}
			cur.children = append(cur.children, next)
		}
		cur = next
	}
	return cur
}

type tree struct {
	svc      *Service
	share    string
	snapshot time.Time
}

func (t *tree) resolve(dir []string) (*node, error) {
	root := t.svc.shares[t.share]
	if root == nil {
		return nil, archerrors.NotFoundf("share %q", t.share)
	}
	cur := root.root
	if !t.snapshot.IsZero() {
		snap, err := t.svc.snapshotLocked(t.share, t.snapshot)
		if err != nil {
			return nil, err
		}
		cur = snap.root
	}
	for _, d := range dir {
		cur = cur.child(d)
		if cur == nil || !cur.dir {
			return nil, archerrors.NotFoundf("directory /%s", strings.Join(dir, "/"))
		}
	}
	return cur, nil
}

func (t *tree) List(ctx context.Context, dir []string, marker string) (share.Page, error) {
	if err := ctx.Err(); err != nil {
		return share.Page{}, err
	}
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	t.svc.calls["List"]++

	n, err := t.resolve(dir)
	if err != nil {
		return share.Page{}, err
	}

	start := 0
	if marker != "" {
		if start, err = strconv.Atoi(marker); err != nil {
			return share.Page{}, errors.Wrapf(err, "bad marker %q", marker)
		}
	}
	end := min(start+max(t.svc.PageSize, 1), len(n.children))

	var page share.Page
	for _, c := range n.children[start:end] {
		item := share.Item{Name: c.name, IsDir: c.dir}
		if !c.dir {
			item.Size = int64(len(c.data))
			item.LastModified = c.mod
		}
		page.Items = append(page.Items, item)
	}
	if end < len(n.children) {
		page.Marker = strconv.Itoa(end)
	}
	return page, nil
}

func (t *tree) Open(ctx context.Context, dir []string, name string) (io.ReadCloser, error) {
	if hook := t.svc.OpenHook; hook != nil {
		if err := hook(ctx, dir, name); err != nil {
			return nil, err
		}
	}
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	t.svc.calls["Open"]++

	n, err := t.resolve(dir)
	if err != nil {
		return nil, err
	}
	f := n.child(name)
	if f == nil || f.dir {
		return nil, archerrors.NotFoundf("file %q", name)
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
