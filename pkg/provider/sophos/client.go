// Package sophos talks to the Sophos Central partner and endpoint APIs.
package sophos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/internal/httpclient"
	"github.com/Mythidas/MSPByte-sub000/pkg/tokencache"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultAuthURL = "https://id.sophos.com/api/v2/oauth2/token"
	DefaultAPIURL  = "https://api.central.sophos.com"

	endpointPageSize = 500
)

type API interface {
	Token(ctx context.Context, creds Credentials) (tokencache.Token, error)
	WhoAmI(ctx context.Context, token string) (WhoAmI, error)
	ListTenants(ctx context.Context, token string, partner WhoAmI) ([]Tenant, error)
	GetTenant(ctx context.Context, token string, partner WhoAmI, tenantID string) (Tenant, error)
	ListEndpoints(ctx context.Context, token string, tenant Tenant) ([]Endpoint, error)
}

type Config struct {
	AuthURL string
	APIURL  string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *zap.Logger
}

func NewClient(logger *zap.Logger, cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   httpclient.New(cfg.Timeout),
		logger: logger.Named("sophos"),
	}
}

// Token exchanges the partner API credentials for a bearer token.
func (c *Client) Token(ctx context.Context, creds Credentials) (tokencache.Token, error) {
	conf := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     c.cfg.AuthURL,
		Scopes:       []string{"token"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http.HTTP)
	tok, err := conf.Token(ctx)
	if err != nil {
		return tokencache.Token{}, fmt.Errorf("sophos token: %w", err)
	}
	return tokencache.Token{Value: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (c *Client) WhoAmI(ctx context.Context, token string) (WhoAmI, error) {
	var who WhoAmI
	if err := c.http.DoRequest(ctx, http.MethodGet, c.cfg.APIURL+"/whoami/v1", bearer(token), nil, &who); err != nil {
		return WhoAmI{}, fmt.Errorf("whoami: %w", err)
	}
	if who.IDType != "partner" {
		return WhoAmI{}, fmt.Errorf("whoami: credentials belong to a %q, expected a partner", who.IDType)
	}
	return who, nil
}

func (c *Client) partnerURL(partner WhoAmI) string {
	if partner.APIHosts.Global != "" {
		return partner.APIHosts.Global
	}
	return c.cfg.APIURL
}

func partnerHeaders(token string, partner WhoAmI) map[string]string {
	h := bearer(token)
	h["X-Partner-ID"] = partner.ID
	return h
}

func (c *Client) ListTenants(ctx context.Context, token string, partner WhoAmI) ([]Tenant, error) {
	var out []Tenant
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("pageTotal", "true")

		var res tenantPage
		err := c.http.DoRequest(ctx, http.MethodGet, c.partnerURL(partner)+"/partner/v1/tenants?"+q.Encode(), partnerHeaders(token, partner), nil, &res)
		if err != nil {
			return nil, fmt.Errorf("list tenants page %d: %w", page, err)
		}
		out = append(out, res.Items...)
		if len(res.Items) == 0 || page >= res.Pages.Total {
			return out, nil
		}
	}
}

func (c *Client) GetTenant(ctx context.Context, token string, partner WhoAmI, tenantID string) (Tenant, error) {
	var tenant Tenant
	err := c.http.DoRequest(ctx, http.MethodGet, c.partnerURL(partner)+"/partner/v1/tenants/"+url.PathEscape(tenantID), partnerHeaders(token, partner), nil, &tenant)
	if err != nil {
		return Tenant{}, fmt.Errorf("get tenant %s: %w", tenantID, err)
	}
	return tenant, nil
}

// ListEndpoints pages through the tenant's endpoints on its regional API host.
func (c *Client) ListEndpoints(ctx context.Context, token string, tenant Tenant) ([]Endpoint, error) {
	if tenant.APIHost == "" {
		return nil, fmt.Errorf("list endpoints: tenant %s has no api host", tenant.ID)
	}
	headers := bearer(token)
	headers["X-Tenant-ID"] = tenant.ID

	var out []Endpoint
	key := ""
	for {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(endpointPageSize))
		if key != "" {
			q.Set("pageFromKey", key)
		}

		var res endpointPage
		if err := c.http.DoRequest(ctx, http.MethodGet, tenant.APIHost+"/endpoint/v1/endpoints?"+q.Encode(), headers, nil, &res); err != nil {
			return nil, fmt.Errorf("list endpoints of %s: %w", tenant.ID, err)
		}
		for _, raw := range res.Items {
			var e Endpoint
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, fmt.Errorf("decode endpoint: %w", err)
			}
			e.Raw = raw
			out = append(out, e)
		}
		if res.Pages.NextKey == "" || res.Pages.NextKey == key {
			c.logger.Debug("listed endpoints", zap.String("tenant_id", tenant.ID), zap.Int("count", len(out)))
			return out, nil
		}
		key = res.Pages.NextKey
	}
}

var _ API = (*Client)(nil)
