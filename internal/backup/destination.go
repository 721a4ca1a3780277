package backup

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/raoulx24/share-archiver/internal/config"
	"github.com/raoulx24/share-archiver/internal/fs"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/sink"
)

// Destination opens the sink an archive named name is written to.
type Destination interface {
	Mode() string
	Open(ctx context.Context, name string, log logging.Logger) (sink.Sink, error)
}

// Local writes archives into a directory.
type Local struct {
	FS  fs.FS
	Dir string
}

func (Local) Mode() string { return config.ModeBackupLocal }

func (l Local) Open(ctx context.Context, name string, log logging.Logger) (sink.Sink, error) {
	fsys := l.FS
	if fsys == nil {
		fsys = fs.New()
	}
	return sink.NewLocal(ctx, fsys, l.Dir, name, log)
}

// Blob uploads archives as block blobs.
type Blob struct {
	// Client returns the blob client for name.
	Client         func(name string) sink.BlockBlob
	BlockSize      int
	AllowOverwrite bool
}

// BlobInContainer returns a Blob destination writing into c.
func BlobInContainer(c *container.Client, blockSize int, allowOverwrite bool) Blob {
	return Blob{
		Client: func(name string) sink.BlockBlob {
			return c.NewBlockBlobClient(name)
		},
		BlockSize:      blockSize,
		AllowOverwrite: allowOverwrite,
	}
}

func (Blob) Mode() string { return config.ModeBackupBlob }

func (b Blob) Open(ctx context.Context, name string, log logging.Logger) (sink.Sink, error) {
	s, err := sink.NewBlob(ctx, b.Client(name), sink.BlobOptions{
		BlockSize:      b.BlockSize,
		AllowOverwrite: b.AllowOverwrite,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	return sink.NonFlushing(s, log), nil
}
