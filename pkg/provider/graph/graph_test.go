package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Mythidas/MSPByte-sub000/pkg/tokencache"
	"github.com/google/uuid"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ptr[T any](v T) *T { return &v }

func TestUserFromModel(t *testing.T) {
	sku := uuid.New()
	signIn := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	license := models.NewAssignedLicense()
	license.SetSkuId(&sku)
	activity := models.NewSignInActivity()
	activity.SetLastSignInDateTime(&signIn)

	m := models.NewUser()
	m.SetId(ptr("u1"))
	m.SetDisplayName(ptr("Ada"))
	m.SetMail(ptr("ada@contoso.com"))
	m.SetUserType(ptr("Guest"))
	m.SetAccountEnabled(ptr(true))
	m.SetSignInActivity(activity)
	m.SetAssignedLicenses([]models.AssignedLicenseable{license})

	u := userFromModel(m)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "ada@contoso.com", u.Mail)
	assert.True(t, u.AccountEnabled)
	assert.True(t, u.IsGuest())
	require.NotNil(t, u.LastSignIn)
	assert.Equal(t, signIn, *u.LastSignIn)
	assert.Equal(t, []string{sku.String()}, u.LicenseSkuIDs)

	empty := userFromModel(models.NewUser())
	assert.False(t, empty.AccountEnabled)
	assert.Nil(t, empty.LastSignIn)
}

func TestMethodFromModel_PhoneType(t *testing.T) {
	phone := models.NewPhoneAuthenticationMethod()
	phone.SetId(ptr("p1"))
	mobile := models.MOBILE_AUTHENTICATIONPHONETYPE
	phone.SetPhoneType(&mobile)

	m := methodFromModel(phone)
	assert.Equal(t, "#microsoft.graph.phoneAuthenticationMethod", m.ODataType)
	assert.Equal(t, "mobile", m.PhoneType)

	fido := methodFromModel(models.NewFido2AuthenticationMethod())
	assert.Equal(t, "#microsoft.graph.fido2AuthenticationMethod", fido.ODataType)
	assert.Empty(t, fido.PhoneType)
}

func TestDirectoryObjectFromModel(t *testing.T) {
	group := models.NewGroup()
	group.SetId(ptr("g1"))
	group.SetDisplayName(ptr("Finance"))
	o := directoryObjectFromModel(group)
	assert.Equal(t, ODataTypeGroup, o.ODataType)
	assert.Equal(t, "g1", o.ID)

	role := models.NewDirectoryRole()
	role.SetId(ptr("r1"))
	role.SetRoleTemplateId(ptr("62e90394-69f5-4237-9190-012177145e10"))
	o = directoryObjectFromModel(role)
	assert.Equal(t, ODataTypeDirectoryRole, o.ODataType)
	assert.Equal(t, "62e90394-69f5-4237-9190-012177145e10", o.RoleTemplateID)
}

func TestPolicyFromModel(t *testing.T) {
	usersCond := models.NewConditionalAccessUsers()
	usersCond.SetIncludeUsers([]string{"All"})
	usersCond.SetExcludeGroups([]string{"g-break-glass"})
	conditions := models.NewConditionalAccessConditionSet()
	conditions.SetUsers(usersCond)

	grant := models.NewConditionalAccessGrantControls()
	grant.SetBuiltInControls([]models.ConditionalAccessGrantControl{models.MFA_CONDITIONALACCESSGRANTCONTROL})
	grant.SetOperator(ptr("OR"))

	state := models.ENABLEDFORREPORTINGBUTNOTENFORCED_CONDITIONALACCESSPOLICYSTATE
	m := models.NewConditionalAccessPolicy()
	m.SetId(ptr("pol1"))
	m.SetDisplayName(ptr("Require MFA"))
	m.SetState(&state)
	m.SetConditions(conditions)
	m.SetGrantControls(grant)

	p := policyFromModel(m)
	assert.Equal(t, "enabledForReportingButNotEnforced", p.State)
	assert.Equal(t, []string{"All"}, p.IncludeUsers)
	assert.Equal(t, []string{"g-break-glass"}, p.ExcludeGroups)
	assert.Equal(t, []string{"mfa"}, p.BuiltInControls)
	assert.Equal(t, "OR", p.GrantOperator)
}

func TestSkuFromModel(t *testing.T) {
	id := uuid.New()
	units := models.NewLicenseUnitsDetail()
	units.SetEnabled(ptr(int32(25)))

	m := models.NewSubscribedSku()
	m.SetSkuId(&id)
	m.SetSkuPartNumber(ptr("SPE_E3"))
	m.SetPrepaidUnits(units)
	m.SetConsumedUnits(ptr(int32(20)))

	s := skuFromModel(m)
	assert.Equal(t, SubscribedSku{SkuID: id.String(), SkuPartNumber: "SPE_E3", Enabled: 25, Consumed: 20}, s)
}

type fakeCredential struct {
	calls atomic.Int32
	token azcore.AccessToken
	err   error
}

func (f *fakeCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	f.calls.Add(1)
	return f.token, f.err
}

func TestCachedCredential(t *testing.T) {
	inner := &fakeCredential{token: azcore.AccessToken{Token: "graph-token", ExpiresOn: time.Now().Add(time.Hour)}}
	store := tokencache.NewMemoryStore()
	cred := NewCachedCredential(tokencache.New(zap.NewNop(), store), tokencache.Key{ID: "i", Scope: "contoso"}, inner)

	for i := 0; i < 3; i++ {
		tok, err := cred.GetToken(context.Background(), policy.TokenRequestOptions{})
		require.NoError(t, err)
		assert.Equal(t, "graph-token", tok.Token)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	failing := NewCachedCredential(tokencache.New(zap.NewNop(), store), tokencache.Key{ID: "j"}, &fakeCredential{err: errors.New("AADSTS7000215")})
	_, err := failing.GetToken(context.Background(), policy.TokenRequestOptions{})
	assert.ErrorContains(t, err, "AADSTS7000215")
}
