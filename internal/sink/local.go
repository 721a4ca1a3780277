package sink

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/fs"
	"github.com/raoulx24/share-archiver/internal/logging"
)

const localBufferSize = 1 << 20

// Local writes into a temporary file next to the target and renames it into
// place on Close.
type Local struct {
	ctx   context.Context
	fs    fs.FS
	log   logging.Logger
	final string
	tmp   string
	f     fs.File
	bw    *bufio.Writer
	n     int64
	done  bool
}

// NewLocal prepares dir/name. It fails with ErrExists when the target is already present.
// ctx bounds the final rename.
func NewLocal(ctx context.Context, fsys fs.FS, dir, name string, log logging.Logger) (*Local, error) {
	if log == nil {
		log = logging.Discard()
	}
	if err := fsys.MkdirAll(dir); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}

	final := filepath.Join(dir, name)
	if err := notExists(fsys, final); err != nil {
		return nil, err
	}

	tmp := filepath.Join(dir, ".tmp-"+name)
	if err := fsys.Remove(tmp); err != nil {
		return nil, errors.Wrapf(err, "removing stale %s", tmp)
	}
	f, err := fsys.Create(tmp)
	if err != nil {
		return nil, err
	}

	return &Local{
		ctx:   ctx,
		fs:    fsys,
		log:   log,
		final: final,
		tmp:   tmp,
		f:     f,
		bw:    bufio.NewWriterSize(f, localBufferSize),
	}, nil
}

func notExists(fsys fs.FS, path string) error {
	_, err := fsys.Stat(path)
	switch {
	case err == nil:
		return errors.Wrapf(archerrors.ErrExists, "%s", path)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return errors.Wrapf(err, "checking %s", path)
	}
}

func (l *Local) Write(p []byte) (int, error) {
	if l.done {
		return 0, errors.Wrap(os.ErrClosed, l.tmp)
	}
	n, err := l.bw.Write(p)
	l.n += int64(n)
	return n, err
}

func (l *Local) Flush() error {
	if l.done {
		return nil
	}
	return l.bw.Flush()
}

// Close flushes, syncs and renames the temporary file to its final name.
func (l *Local) Close() error {
	if l.done {
		return nil
	}
	l.done = true

	if err := l.finish(); err != nil {
		_ = l.fs.Remove(l.tmp)
		return err
	}
	l.log.Info("archive written", "path", l.final, "size", humanize.IBytes(uint64(l.n)))
	return nil
}

func (l *Local) finish() error {
	if err := l.bw.Flush(); err != nil {
		_ = l.f.Close()
		return errors.Wrapf(err, "writing %s", l.tmp)
	}
	if err := l.f.Sync(); err != nil {
		_ = l.f.Close()
		return errors.Wrapf(err, "syncing %s", l.tmp)
	}
	if err := l.f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", l.tmp)
	}
	if err := notExists(l.fs, l.final); err != nil {
		return err
	}
	return l.fs.Rename(l.ctx, l.tmp, l.final)
}

// Abort closes and removes the temporary file.
func (l *Local) Abort() error {
	if l.done {
		return nil
	}
	l.done = true

	_ = l.f.Close()
	if err := l.fs.Remove(l.tmp); err != nil {
		return errors.Wrapf(err, "removing %s", l.tmp)
	}
	l.log.Debug("partial archive discarded", "path", l.tmp)
	return nil
}

func (l *Local) Location() string {
	return l.final
}
