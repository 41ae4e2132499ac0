package graph

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Mythidas/MSPByte-sub000/pkg/tokencache"
)

// DefaultScope is the application permission scope for Graph.
const DefaultScope = "https://graph.microsoft.com/.default"

// Credentials is the client-credentials registration of the MSP's
// multi-tenant application.
type Credentials struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
	TenantID     string `json:"tenant_id"`
}

// CachedCredential serves tokens from a tokencache.Cache and only asks the
// wrapped credential for a new one when the cached token is near expiry.
type CachedCredential struct {
	cache *tokencache.Cache
	key   tokencache.Key
	inner azcore.TokenCredential
}

func NewCachedCredential(cache *tokencache.Cache, key tokencache.Key, inner azcore.TokenCredential) *CachedCredential {
	return &CachedCredential{cache: cache, key: key, inner: inner}
}

// NewClientSecretCredential issues tokens for authority (a tenant id or
// domain) with the application's secret.
func NewClientSecretCredential(authority string, creds Credentials) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(authority, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("client secret credential: %w", err)
	}
	return cred, nil
}

func (c *CachedCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if len(options.Scopes) == 0 {
		options.Scopes = []string{DefaultScope}
	}
	tok, err := c.cache.GetOrRefresh(ctx, c.key, func(ctx context.Context) (tokencache.Token, error) {
		t, err := c.inner.GetToken(ctx, options)
		if err != nil {
			return tokencache.Token{}, err
		}
		return tokencache.Token{Value: t.Token, ExpiresAt: t.ExpiresOn}, nil
	})
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: tok.Value, ExpiresOn: tok.ExpiresAt}, nil
}

var _ azcore.TokenCredential = (*CachedCredential)(nil)
