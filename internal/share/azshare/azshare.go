// Package azshare implements share.Service on Azure Files.
package azshare

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azfile/directory"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azfile/file"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azfile/fileerror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azfile/service"
	fileshare "github.com/Azure/azure-sdk-for-go/sdk/storage/azfile/share"
	"github.com/cockroachdb/errors"

	"github.com/raoulx24/share-archiver/internal/azauth"
	"github.com/raoulx24/share-archiver/internal/config"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/share"
)

// Service is a share.Service backed by an Azure Files service client.
type Service struct {
	client *service.Client
	log    logging.Logger
}

var _ share.Service = (*Service)(nil)

// New builds the service client for the account using the credential picked by azauth.Resolve.
func New(acct config.AccountConfig, log logging.Logger) (*Service, error) {
	if log == nil {
		log = logging.Discard()
	}
	method, err := azauth.Resolve(acct)
	if err != nil {
		return nil, archerrors.Validationf("source account: %v", err)
	}

	var client *service.Client
	endpoint := azauth.Endpoint(acct, "file")
	switch method {
	case azauth.ConnectionString:
		client, err = service.NewClientFromConnectionString(acct.ConnectionString, nil)
	case azauth.SAS:
		client, err = service.NewClientWithNoCredential(azauth.WithSAS(endpoint, acct.SASToken), nil)
	case azauth.SharedKey:
		var cred *service.SharedKeyCredential
		if cred, err = service.NewSharedKeyCredential(acct.AccountName, acct.AccountKey); err == nil {
			client, err = service.NewClientWithSharedKeyCredential(endpoint, cred, nil)
		}
	case azauth.Token:
		var cred azcore.TokenCredential
		if cred, err = azauth.TokenCredential(); err == nil {
			client, err = service.NewClient(endpoint, cred, &service.ClientOptions{
				FileRequestIntent: to.Ptr(service.ShareTokenIntentBackup),
			})
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating file service client")
	}

	log.Debug("file service client ready", "url", client.URL(), "auth", method.String())
	return &Service{client: client, log: log}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *service.Client, log logging.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{client: client, log: log}
}

func isNotFound(err error) bool {
	if fileerror.HasCode(err, fileerror.ShareNotFound, fileerror.ResourceNotFound) {
		return true
	}
	var re *azcore.ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.NewShareClient(name).GetProperties(ctx, nil)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, errors.Wrapf(err, "getting properties of share %q", name)
	}
}

func (s *Service) CreateSnapshot(ctx context.Context, name string, metadata map[string]string) (share.Info, error) {
	resp, err := s.client.NewShareClient(name).CreateSnapshot(ctx, &fileshare.CreateSnapshotOptions{
		Metadata: toPtrMap(metadata),
	})
	if err != nil {
		if isNotFound(err) {
			return share.Info{}, archerrors.NotFoundf("share %q", name)
		}
		return share.Info{}, err
	}
	if resp.Snapshot == nil {
		return share.Info{}, errors.Newf("service returned no snapshot time for share %q", name)
	}

	t, err := share.ParseSnapshotTime(*resp.Snapshot)
	if err != nil {
		return share.Info{}, errors.Wrapf(err, "parsing snapshot time %q", *resp.Snapshot)
	}
	return share.Info{Name: name, Snapshot: t, Metadata: metadata}, nil
}

func (s *Service) ListShares(ctx context.Context, prefix string) ([]share.Info, error) {
	opts := &service.ListSharesOptions{
		Include: service.ListSharesInclude{Metadata: true, Snapshots: true},
	}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}

	var out []share.Info
	pager := s.client.NewListSharesPager(opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "listing shares")
		}
		for _, sh := range page.Shares {
			if sh == nil || sh.Name == nil {
				continue
			}
			info := share.Info{Name: *sh.Name, Metadata: fromPtrMap(sh.Metadata)}
			if sh.Snapshot != nil && *sh.Snapshot != "" {
				t, err := share.ParseSnapshotTime(*sh.Snapshot)
				if err != nil {
					s.log.Warn("skipping share with unparsable snapshot time", "share", *sh.Name, "snapshot", *sh.Snapshot)
					continue
				}
				info.Snapshot = t
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *Service) snapshotClient(name string, t time.Time) (*fileshare.Client, error) {
	c := s.client.NewShareClient(name)
	if t.IsZero() {
		return c, nil
	}
	return c.WithSnapshot(share.FormatSnapshotTime(t))
}

func (s *Service) GetSnapshot(ctx context.Context, name string, t time.Time) (share.Info, error) {
	c, err := s.snapshotClient(name, t)
	if err != nil {
		return share.Info{}, err
	}
	props, err := c.GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return share.Info{}, archerrors.NotFoundf("snapshot %s of share %q", share.FormatSnapshotTime(t), name)
		}
		return share.Info{}, errors.Wrapf(err, "getting snapshot of share %q", name)
	}
	return share.Info{Name: name, Snapshot: t.UTC(), Metadata: fromPtrMap(props.Metadata)}, nil
}

func (s *Service) DeleteSnapshot(ctx context.Context, name string, t time.Time) error {
	if t.IsZero() {
		return archerrors.Validationf("refusing to delete live share %q", name)
	}
	_, err := s.client.NewShareClient(name).Delete(ctx, &fileshare.DeleteOptions{
		ShareSnapshot: to.Ptr(share.FormatSnapshotTime(t)),
	})
	if err != nil && isNotFound(err) {
		return archerrors.NotFoundf("snapshot %s of share %q", share.FormatSnapshotTime(t), name)
	}
	return err
}

func (s *Service) Tree(name string, t time.Time) share.Tree {
	return &tree{svc: s, share: name, snapshot: t}
}

type tree struct {
	svc      *Service
	share    string
	snapshot time.Time
}

func (t *tree) dir(path []string) (*directory.Client, error) {
	c, err := t.svc.snapshotClient(t.share, t.snapshot)
	if err != nil {
		return nil, err
	}
	d := c.NewRootDirectoryClient()
	for _, p := range path {
		d = d.NewSubdirectoryClient(p)
	}
	return d, nil
}

// List returns one listing segment; directories of a segment come before its files.
func (t *tree) List(ctx context.Context, path []string, marker string) (share.Page, error) {
	d, err := t.dir(path)
	if err != nil {
		return share.Page{}, err
	}

	opts := &directory.ListFilesAndDirectoriesOptions{
		Include: directory.ListFilesInclude{Timestamps: true},
	}
	if marker != "" {
		opts.Marker = to.Ptr(marker)
	}
	resp, err := d.NewListFilesAndDirectoriesPager(opts).NextPage(ctx)
	if err != nil {
		return share.Page{}, errors.Wrapf(err, "listing %s", d.URL())
	}

	var page share.Page
	if resp.Segment != nil {
		for _, sub := range resp.Segment.Directories {
			if sub != nil && sub.Name != nil {
				page.Items = append(page.Items, share.Item{Name: *sub.Name, IsDir: true})
			}
		}
		for _, f := range resp.Segment.Files {
			if f == nil || f.Name == nil {
				continue
			}
			item := share.Item{Name: *f.Name}
			if p := f.Properties; p != nil {
				if p.ContentLength != nil {
					item.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					item.LastModified = p.LastModified.UTC()
				}
			}
			page.Items = append(page.Items, item)
		}
	}
	if resp.NextMarker != nil {
		page.Marker = *resp.NextMarker
	}
	return page, nil
}

func (t *tree) Open(ctx context.Context, path []string, name string) (io.ReadCloser, error) {
	d, err := t.dir(path)
	if err != nil {
		return nil, err
	}
	fc := d.NewFileClient(name)
	resp, err := fc.DownloadStream(ctx, &file.DownloadStreamOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "downloading %s", fc.URL())
	}
	return resp.Body, nil
}

func toPtrMap(m map[string]string) map[string]*string {
	if m == nil {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		out[k] = to.Ptr(v)
	}
	return out
}

func fromPtrMap(m map[string]*string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = *v
		} else {
			out[k] = ""
		}
	}
	return out
}
