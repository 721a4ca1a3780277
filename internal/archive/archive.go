// Package archive serializes source entries into zip or (optionally
// compressed) tar streams, one entry at a time.
package archive

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/source"
)

// FallbackModTime is written for entries whose modification time is unknown.
// It is the earliest instant both the zip (MS-DOS) and tar headers encode natively.
var FallbackModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Format selects the archive framing and compression.
type Format int

const (
	Zip Format = iota + 1
	Tar
	TarGzip
	TarBzip2
)

// ParseFormat maps a configuration value onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zip":
		return Zip, nil
	case "tar":
		return Tar, nil
	case "targzip", "tar.gz", "tgz":
		return TarGzip, nil
	case "tarbzip2", "tar.bz2", "tbz2":
		return TarBzip2, nil
	default:
		return 0, archerrors.Validationf("unsupported archive type %q", s)
	}
}

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case Tar:
		return "tar"
	case TarGzip:
		return "targzip"
	case TarBzip2:
		return "tarbzip2"
	default:
		return "unknown"
	}
}

// Extension returns the file extension used when naming archives, without the dot.
func (f Format) Extension() string {
	switch f {
	case Zip:
		return "zip"
	case Tar:
		return "tar"
	case TarGzip:
		return "tar.gz"
	case TarBzip2:
		return "tar.bz2"
	default:
		return ""
	}
}

// Writer accepts entries one at a time. After Close every Add fails with
// ErrArchiveState; Close itself may be called any number of times.
// Close finishes the archive stream but does not close the underlying sink.
type Writer interface {
	Add(ctx context.Context, e source.Entry) error
	Close() error
}

// Flusher is implemented by sinks that can push buffered bytes downstream.
type Flusher interface {
	Flush() error
}

type options struct {
	log logging.Logger
}

// Option configures a Writer.
type Option func(*options)

// WithLogger sets the logger used for per-entry debug output.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// New builds a writer of the given format on top of w. Compression, if any,
// wraps w before the archive framing is layered on.
func New(format Format, w io.Writer, opts ...Option) (Writer, error) {
	o := options{log: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	b := base{sink: w, log: o.log}
	switch format {
	case Zip:
		return newZipWriter(b), nil
	case Tar, TarGzip, TarBzip2:
		codec, err := newCodec(format, w)
		if err != nil {
			return nil, err
		}
		return newTarWriter(b, codec, format), nil
	default:
		return nil, archerrors.Validationf("unsupported archive format %d", int(format))
	}
}

// base holds the state shared by all formats.
type base struct {
	sink    io.Writer
	log     logging.Logger
	closed  bool
	entries int
	bytes   int64
}

func (b *base) checkOpen(name string) error {
	if b.closed {
		return errors.Wrapf(archerrors.ErrArchiveState, "adding %q", name)
	}
	return nil
}

func (b *base) flushSink() error {
	if f, ok := b.sink.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (b *base) logEntry(name string, e source.Entry) {
	b.log.Debug("adding entry to archive", "name", name, "size", humanize.IBytes(uint64(max(e.Size, 0))))
}

func (b *base) logClosed(format Format) {
	b.log.Debug("archive finalized", "format", format.String(), "entries", b.entries, "content", humanize.IBytes(uint64(b.bytes)))
}

func modTime(e source.Entry) time.Time {
	if e.LastModified.IsZero() {
		return FallbackModTime
	}
	return e.LastModified
}

// copyContent streams the entry content into w.
func copyContent(ctx context.Context, w io.Writer, e source.Entry) (int64, error) {
	rc, err := e.Open(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %q", e.Path("/"))
	}
	defer rc.Close()

	n, err := io.Copy(w, rc)
	if err != nil {
		return n, errors.Wrapf(err, "copying %q", e.Path("/"))
	}
	return n, nil
}
