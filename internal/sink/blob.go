package sink

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
)

const (
	// DefaultBlockSize is the size of a staged block when none is configured.
	DefaultBlockSize = 8 << 20

	// MaxBlocks is the most blocks the service accepts in one committed block list.
	MaxBlocks = 50_000
)

// BlockBlob is the subset of *blockblob.Client used by Blob.
type BlockBlob interface {
	URL() string
	GetProperties(ctx context.Context, o *blob.GetPropertiesOptions) (blob.GetPropertiesResponse, error)
	StageBlock(ctx context.Context, base64BlockID string, body io.ReadSeekCloser, o *blockblob.StageBlockOptions) (blockblob.StageBlockResponse, error)
	CommitBlockList(ctx context.Context, base64BlockIDs []string, o *blockblob.CommitBlockListOptions) (blockblob.CommitBlockListResponse, error)
}

// BlobOptions configures a Blob sink.
type BlobOptions struct {
	BlockSize      int
	AllowOverwrite bool
	Logger         logging.Logger
}

// Blob uploads into a block blob. Writes are cut into blocks of BlockSize;
// the blob only becomes visible when Close commits the block list.
type Blob struct {
	ctx       context.Context
	client    BlockBlob
	log       logging.Logger
	blockSize int
	overwrite bool
	buf       []byte
	ids       []string
	n         int64
	done      bool
}

// NewBlob prepares an upload. Unless overwriting is allowed it fails with
// ErrExists when the blob is already present. ctx bounds every request.
func NewBlob(ctx context.Context, client BlockBlob, opts BlobOptions) (*Blob, error) {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	if !opts.AllowOverwrite {
		_, err := client.GetProperties(ctx, nil)
		switch {
		case err == nil:
			return nil, errors.Wrapf(archerrors.ErrExists, "blob %s", client.URL())
		case bloberror.HasCode(err, bloberror.BlobNotFound):
		default:
			return nil, errors.Wrapf(err, "checking blob %s", client.URL())
		}
	}

	return &Blob{
		ctx:       ctx,
		client:    client,
		log:       opts.Logger,
		blockSize: opts.BlockSize,
		overwrite: opts.AllowOverwrite,
		buf:       make([]byte, 0, opts.BlockSize),
	}, nil
}

func (b *Blob) Write(p []byte) (int, error) {
	if b.done {
		return 0, errors.Newf("blob %s is closed", b.client.URL())
	}
	written := 0
	for len(p) > 0 {
		k := min(len(p), b.blockSize-len(b.buf))
		b.buf = append(b.buf, p[:k]...)
		p = p[k:]
		written += k

		if len(b.buf) == b.blockSize {
			if err := b.stage(); err != nil {
				return written, err
			}
		}
	}
	b.n += int64(written)
	return written, nil
}

// Flush stages whatever is buffered as a block of its own.
func (b *Blob) Flush() error {
	if b.done || len(b.buf) == 0 {
		return nil
	}
	return b.stage()
}

func (b *Blob) stage() error {
	if len(b.ids) >= MaxBlocks {
		return archerrors.Validationf("%s: archive exceeds %d blocks of %s, raise blob.blockSize",
			b.client.URL(), MaxBlocks, humanize.IBytes(uint64(b.blockSize)))
	}
	id := blockID(len(b.ids))
	body := streaming.NopCloser(bytes.NewReader(b.buf))
	if _, err := b.client.StageBlock(b.ctx, id, body, nil); err != nil {
		return errors.Wrapf(err, "staging block %d of %s", len(b.ids), b.client.URL())
	}
	b.ids = append(b.ids, id)
	b.buf = b.buf[:0]
	return nil
}

// Close stages the remainder and commits the block list.
func (b *Blob) Close() error {
	if b.done {
		return nil
	}
	if err := b.Flush(); err != nil {
		b.done = true
		return err
	}
	b.done = true

	var opts *blockblob.CommitBlockListOptions
	if !b.overwrite {
		opts = &blockblob.CommitBlockListOptions{
			AccessConditions: &blob.AccessConditions{
				ModifiedAccessConditions: &blob.ModifiedAccessConditions{
					IfNoneMatch: to.Ptr(azcore.ETagAny),
				},
			},
		}
	}

	if _, err := b.client.CommitBlockList(b.ctx, b.ids, opts); err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return errors.Mark(errors.Wrapf(err, "committing %s", b.client.URL()), archerrors.ErrExists)
		}
		return errors.Wrapf(err, "committing %s", b.client.URL())
	}

	b.log.Info("archive uploaded", "url", b.client.URL(), "blocks", len(b.ids), "size", humanize.IBytes(uint64(b.n)))
	return nil
}

// Abort drops the buffer. Staged blocks that are never committed are
// garbage collected by the service.
func (b *Blob) Abort() error {
	if b.done {
		return nil
	}
	b.done = true
	b.buf = nil
	b.log.Debug("blob upload abandoned", "url", b.client.URL(), "staged", len(b.ids))
	return nil
}

func (b *Blob) Location() string {
	return b.client.URL()
}

// blockID returns a fixed-width id; all ids of a blob must have the same length.
func blockID(n int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%08d", n)))
}
