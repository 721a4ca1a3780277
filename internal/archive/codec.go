package archive

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
)

// codec is the compression layer between the tar framing and the sink.
type codec interface {
	io.Writer
	Close() error
}

// passthrough is the identity codec; Close leaves the sink alone.
type passthrough struct {
	io.Writer
}

func (passthrough) Close() error { return nil }

func newCodec(format Format, w io.Writer) (codec, error) {
	switch format {
	case TarGzip:
		return gzip.NewWriter(w), nil
	case TarBzip2:
		bz, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, errors.Wrap(err, "creating bzip2 writer")
		}
		return bz, nil
	default:
		return passthrough{w}, nil
	}
}
