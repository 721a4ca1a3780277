package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"

	"github.com/raoulx24/share-archiver/internal/source"
)

type zipWriter struct {
	base
	zw *zip.Writer
}

func newZipWriter(b base) *zipWriter {
	zw := zip.NewWriter(b.sink)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return &zipWriter{base: b, zw: zw}
}

func (z *zipWriter) Add(ctx context.Context, e source.Entry) error {
	name := e.Path("/")
	if err := z.checkOpen(name); err != nil {
		return err
	}
	if name == "" {
		return nil
	}
	z.logEntry(name, e)

	hdr := &zip.FileHeader{
		Name:     name,
		Modified: modTime(e),
		Method:   zip.Deflate,
	}
	if e.IsDir() {
		hdr.Method = zip.Store
		hdr.SetMode(fs.ModeDir | 0o755)
	} else {
		hdr.SetMode(0o644)
	}

	w, err := z.zw.CreateHeader(hdr)
	if err != nil {
		return errors.Wrapf(err, "writing zip header for %q", name)
	}

	if !e.IsDir() {
		n, err := copyContent(ctx, w, e)
		if err != nil {
			return err
		}
		z.bytes += n
	}
	z.entries++

	if err := z.zw.Flush(); err != nil {
		return errors.Wrap(err, "flushing zip stream")
	}
	return z.flushSink()
}

func (z *zipWriter) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true

	if err := z.zw.Close(); err != nil {
		return errors.Wrap(err, "writing zip central directory")
	}
	z.logClosed(Zip)
	return z.flushSink()
}
