package archive

import (
	"archive/tar"
	"context"

	"github.com/cockroachdb/errors"

	"github.com/raoulx24/share-archiver/internal/source"
)

type tarWriter struct {
	base
	codec  codec
	tw     *tar.Writer
	format Format
}

func newTarWriter(b base, c codec, format Format) *tarWriter {
	return &tarWriter{base: b, codec: c, tw: tar.NewWriter(c), format: format}
}

func (t *tarWriter) Add(ctx context.Context, e source.Entry) error {
	name := e.Path("/")
	if err := t.checkOpen(name); err != nil {
		return err
	}
	if name == "" {
		return nil
	}
	t.logEntry(name, e)

	hdr := &tar.Header{
		Name:     name,
		ModTime:  modTime(e),
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     e.Size,
	}
	if e.IsDir() {
		hdr.Typeflag = tar.TypeDir
		hdr.Mode = 0o755
		hdr.Size = 0
	}

	if err := t.tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "writing tar header for %q", name)
	}

	if !e.IsDir() {
		n, err := copyContent(ctx, t.tw, e)
		if err != nil {
			return err
		}
		if n != e.Size {
			return errors.Newf("content of %q is %d bytes, header declared %d", name, n, e.Size)
		}
		t.bytes += n
	}
	t.entries++

	if err := t.tw.Flush(); err != nil {
		return errors.Wrap(err, "padding tar entry")
	}
	return t.flushSink()
}

func (t *tarWriter) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	if err := t.tw.Close(); err != nil {
		return errors.Wrap(err, "writing tar trailer")
	}
	if err := t.codec.Close(); err != nil {
		return errors.Wrap(err, "finishing compression")
	}
	t.logClosed(t.format)
	return t.flushSink()
}
