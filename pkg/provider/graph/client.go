// Package graph reads the Entra ID directory of a customer tenant through
// Microsoft Graph.
package graph

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	absauth "github.com/microsoft/kiota-abstractions-go/authentication"
	authentication "github.com/microsoft/kiota-authentication-azure-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	"go.uber.org/zap"
)

// API is the subset of Graph the sync pipeline needs. List calls follow
// @odata.nextLink until exhausted.
type API interface {
	ListUsers(ctx context.Context) ([]User, error)
	ListAuthenticationMethods(ctx context.Context, userID string) ([]AuthenticationMethod, error)
	ListTransitiveMemberships(ctx context.Context, userID string) ([]DirectoryObject, error)
	ListConditionalAccessPolicies(ctx context.Context) ([]ConditionalAccessPolicy, error)
	SecurityDefaultsEnabled(ctx context.Context) (bool, error)
	ListSubscribedSkus(ctx context.Context) ([]SubscribedSku, error)
}

var userFields = []string{
	"id", "displayName", "mail", "userPrincipalName", "userType",
	"accountEnabled", "createdDateTime", "assignedLicenses",
}

const pageSize = int32(999)

type Client struct {
	client *msgraphsdk.GraphServiceClient
	logger *zap.Logger
}

// NewClient builds a Graph client authenticated by credential.
func NewClient(logger *zap.Logger, credential azcore.TokenCredential) (*Client, error) {
	tokenProvider, err := authentication.NewAzureIdentityAccessTokenProvider(credential)
	if err != nil {
		return nil, fmt.Errorf("token provider: %w", err)
	}

	return newClient(logger, absauth.NewBaseBearerTokenAuthenticationProvider(tokenProvider), "")
}

// newClient builds a client against baseURL, or the public Graph v1.0
// endpoint when baseURL is empty.
func newClient(logger *zap.Logger, authProvider absauth.AuthenticationProvider, baseURL string) (*Client, error) {
	requestAdaptor, err := msgraphsdk.NewGraphRequestAdapter(authProvider)
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	if baseURL != "" {
		requestAdaptor.SetBaseUrl(baseURL)
	}

	return &Client{
		client: msgraphsdk.NewGraphServiceClient(requestAdaptor),
		logger: logger.Named("graph"),
	}, nil
}

// ListUsers asks for sign-in activity first; tenants without an Entra ID
// P1 license reject that field, in which case users are listed without it.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	out, err := c.listUsers(ctx, append(userFields, "signInActivity"))
	if err == nil {
		return out, nil
	}
	c.logger.Warn("listing users with sign-in activity failed, retrying without it", zap.Error(err))
	return c.listUsers(ctx, userFields)
}

func (c *Client) listUsers(ctx context.Context, fields []string) ([]User, error) {
	top := pageSize
	page, err := c.client.Users().Get(ctx, &users.UsersRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.UsersRequestBuilderGetQueryParameters{
			Select: fields,
			Top:    &top,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var out []User
	for {
		for _, u := range page.GetValue() {
			out = append(out, userFromModel(u))
		}
		next := page.GetOdataNextLink()
		if next == nil || *next == "" {
			return out, nil
		}
		page, err = c.client.Users().WithUrl(*next).Get(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
	}
}

func (c *Client) ListAuthenticationMethods(ctx context.Context, userID string) ([]AuthenticationMethod, error) {
	builder := c.client.Users().ByUserId(userID).Authentication().Methods()
	page, err := builder.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list authentication methods of %s: %w", userID, err)
	}

	var out []AuthenticationMethod
	for {
		for _, m := range page.GetValue() {
			out = append(out, methodFromModel(m))
		}
		next := page.GetOdataNextLink()
		if next == nil || *next == "" {
			return out, nil
		}
		page, err = builder.WithUrl(*next).Get(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("list authentication methods of %s: %w", userID, err)
		}
	}
}

func (c *Client) ListTransitiveMemberships(ctx context.Context, userID string) ([]DirectoryObject, error) {
	builder := c.client.Users().ByUserId(userID).TransitiveMemberOf()
	page, err := builder.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list memberships of %s: %w", userID, err)
	}

	var out []DirectoryObject
	for {
		for _, o := range page.GetValue() {
			out = append(out, directoryObjectFromModel(o))
		}
		next := page.GetOdataNextLink()
		if next == nil || *next == "" {
			return out, nil
		}
		page, err = builder.WithUrl(*next).Get(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("list memberships of %s: %w", userID, err)
		}
	}
}

func (c *Client) ListConditionalAccessPolicies(ctx context.Context) ([]ConditionalAccessPolicy, error) {
	builder := c.client.Identity().ConditionalAccess().Policies()
	page, err := builder.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list conditional access policies: %w", err)
	}

	var out []ConditionalAccessPolicy
	for {
		for _, p := range page.GetValue() {
			out = append(out, policyFromModel(p))
		}
		next := page.GetOdataNextLink()
		if next == nil || *next == "" {
			return out, nil
		}
		page, err = builder.WithUrl(*next).Get(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("list conditional access policies: %w", err)
		}
	}
}

func (c *Client) SecurityDefaultsEnabled(ctx context.Context) (bool, error) {
	policy, err := c.client.Policies().IdentitySecurityDefaultsEnforcementPolicy().Get(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("get security defaults: %w", err)
	}
	enabled := policy.GetIsEnabled()
	return enabled != nil && *enabled, nil
}

func (c *Client) ListSubscribedSkus(ctx context.Context) ([]SubscribedSku, error) {
	page, err := c.client.SubscribedSkus().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list subscribed skus: %w", err)
	}
	var out []SubscribedSku
	for _, s := range page.GetValue() {
		out = append(out, skuFromModel(s))
	}
	return out, nil
}

var _ API = (*Client)(nil)
