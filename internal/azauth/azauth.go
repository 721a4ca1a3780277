// Package azauth resolves how a storage account is addressed and authenticated.
package azauth

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/cockroachdb/errors"

	"github.com/raoulx24/share-archiver/internal/config"
)

// Method is the credential source picked for an account.
type Method int

const (
	ConnectionString Method = iota + 1
	SAS
	SharedKey
	Token
)

func (m Method) String() string {
	switch m {
	case ConnectionString:
		return "connection-string"
	case SAS:
		return "sas"
	case SharedKey:
		return "shared-key"
	case Token:
		return "default-azure-credential"
	default:
		return "unknown"
	}
}

// Resolve picks the credential source: connection string, SAS token,
// account key, then the default Azure credential chain.
func Resolve(a config.AccountConfig) (Method, error) {
	switch {
	case a.ConnectionString != "":
		return ConnectionString, nil
	case a.AccountName == "":
		return 0, errors.New("account has neither a connection string nor an account name")
	case a.SASToken != "":
		return SAS, nil
	case a.AccountKey != "":
		return SharedKey, nil
	default:
		return Token, nil
	}
}

// Endpoint returns the service URL of the account, service being "file" or "blob".
// It always ends with a slash.
func Endpoint(a config.AccountConfig, service string) string {
	u := a.Endpoint
	if u == "" {
		u = fmt.Sprintf("https://%s.%s.core.windows.net/", a.AccountName, service)
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// WithSAS appends the account SAS token to url.
func WithSAS(url, sas string) string {
	return url + "?" + strings.TrimPrefix(sas, "?")
}

var (
	tokenOnce sync.Once
	tokenCred azcore.TokenCredential
	tokenErr  error
)

// TokenCredential returns the process-wide default Azure credential.
func TokenCredential() (azcore.TokenCredential, error) {
	tokenOnce.Do(func() {
		tokenCred, tokenErr = azidentity.NewDefaultAzureCredential(nil)
		if tokenErr != nil {
			tokenErr = errors.Wrap(tokenErr, "creating default Azure credential")
		}
	})
	return tokenCred, tokenErr
}
