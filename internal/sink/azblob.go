package sink

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/cockroachdb/errors"

	"github.com/raoulx24/share-archiver/internal/azauth"
	"github.com/raoulx24/share-archiver/internal/config"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
)

// NewContainerClient connects to a blob container with the account's credentials.
func NewContainerClient(acct config.AccountConfig, containerName string) (*container.Client, error) {
	method, err := azauth.Resolve(acct)
	if err != nil {
		return nil, archerrors.Validationf("blob account: %v", err)
	}

	var client *azblob.Client
	endpoint := azauth.Endpoint(acct, "blob")
	switch method {
	case azauth.ConnectionString:
		client, err = azblob.NewClientFromConnectionString(acct.ConnectionString, nil)
	case azauth.SAS:
		client, err = azblob.NewClientWithNoCredential(azauth.WithSAS(endpoint, acct.SASToken), nil)
	case azauth.SharedKey:
		var cred *azblob.SharedKeyCredential
		if cred, err = azblob.NewSharedKeyCredential(acct.AccountName, acct.AccountKey); err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
		}
	case azauth.Token:
		var cred azcore.TokenCredential
		if cred, err = azauth.TokenCredential(); err == nil {
			client, err = azblob.NewClient(endpoint, cred, nil)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating blob service client")
	}
	return client.ServiceClient().NewContainerClient(containerName), nil
}
