package graph

import (
	"strings"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
)

type User struct {
	ID                string
	DisplayName       string
	Mail              string
	UserPrincipalName string
	UserType          string
	AccountEnabled    bool
	CreatedAt         *time.Time
	LastSignIn        *time.Time
	LicenseSkuIDs     []string
}

// IsGuest reports whether the user is an external guest account.
func (u User) IsGuest() bool {
	return strings.EqualFold(u.UserType, "Guest")
}

type AuthenticationMethod struct {
	ID        string
	ODataType string
	// PhoneType is set for phone methods: mobile, alternateMobile or office.
	PhoneType string
}

type DirectoryObject struct {
	ID             string
	ODataType      string
	DisplayName    string
	RoleTemplateID string
}

const (
	ODataTypeGroup         = "#microsoft.graph.group"
	ODataTypeDirectoryRole = "#microsoft.graph.directoryRole"
)

type ConditionalAccessPolicy struct {
	ID              string     `json:"id"`
	DisplayName     string     `json:"displayName"`
	State           string     `json:"state"`
	IncludeUsers    []string   `json:"includeUsers"`
	ExcludeUsers    []string   `json:"excludeUsers"`
	IncludeGroups   []string   `json:"includeGroups"`
	ExcludeGroups   []string   `json:"excludeGroups"`
	IncludeRoles    []string   `json:"includeRoles"`
	ExcludeRoles    []string   `json:"excludeRoles"`
	BuiltInControls []string   `json:"builtInControls"`
	GrantOperator   string     `json:"grantOperator,omitempty"`
	CreatedAt       *time.Time `json:"createdDateTime,omitempty"`
	ModifiedAt      *time.Time `json:"modifiedDateTime,omitempty"`
}

type SubscribedSku struct {
	SkuID         string
	SkuPartNumber string
	Enabled       int
	Consumed      int
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func userFromModel(m models.Userable) User {
	u := User{
		ID:                str(m.GetId()),
		DisplayName:       str(m.GetDisplayName()),
		Mail:              str(m.GetMail()),
		UserPrincipalName: str(m.GetUserPrincipalName()),
		UserType:          str(m.GetUserType()),
		CreatedAt:         m.GetCreatedDateTime(),
	}
	if enabled := m.GetAccountEnabled(); enabled != nil {
		u.AccountEnabled = *enabled
	}
	if activity := m.GetSignInActivity(); activity != nil {
		u.LastSignIn = activity.GetLastSignInDateTime()
	}
	for _, l := range m.GetAssignedLicenses() {
		if id := l.GetSkuId(); id != nil {
			u.LicenseSkuIDs = append(u.LicenseSkuIDs, id.String())
		}
	}
	return u
}

func methodFromModel(m models.AuthenticationMethodable) AuthenticationMethod {
	method := AuthenticationMethod{
		ID:        str(m.GetId()),
		ODataType: str(m.GetOdataType()),
	}
	if phone, ok := m.(models.PhoneAuthenticationMethodable); ok {
		if t := phone.GetPhoneType(); t != nil {
			method.PhoneType = t.String()
		}
	}
	return method
}

func directoryObjectFromModel(m models.DirectoryObjectable) DirectoryObject {
	o := DirectoryObject{
		ID:        str(m.GetId()),
		ODataType: str(m.GetOdataType()),
	}
	switch v := m.(type) {
	case models.Groupable:
		o.ODataType = ODataTypeGroup
		o.DisplayName = str(v.GetDisplayName())
	case models.DirectoryRoleable:
		o.ODataType = ODataTypeDirectoryRole
		o.DisplayName = str(v.GetDisplayName())
		o.RoleTemplateID = str(v.GetRoleTemplateId())
	}
	return o
}

func policyFromModel(m models.ConditionalAccessPolicyable) ConditionalAccessPolicy {
	p := ConditionalAccessPolicy{
		ID:          str(m.GetId()),
		DisplayName: str(m.GetDisplayName()),
		CreatedAt:   m.GetCreatedDateTime(),
		ModifiedAt:  m.GetModifiedDateTime(),
	}
	if state := m.GetState(); state != nil {
		p.State = state.String()
	}
	if conditions := m.GetConditions(); conditions != nil {
		if users := conditions.GetUsers(); users != nil {
			p.IncludeUsers = users.GetIncludeUsers()
			p.ExcludeUsers = users.GetExcludeUsers()
			p.IncludeGroups = users.GetIncludeGroups()
			p.ExcludeGroups = users.GetExcludeGroups()
			p.IncludeRoles = users.GetIncludeRoles()
			p.ExcludeRoles = users.GetExcludeRoles()
		}
	}
	if grant := m.GetGrantControls(); grant != nil {
		for _, c := range grant.GetBuiltInControls() {
			p.BuiltInControls = append(p.BuiltInControls, c.String())
		}
		p.GrantOperator = str(grant.GetOperator())
	}
	return p
}

func skuFromModel(m models.SubscribedSkuable) SubscribedSku {
	s := SubscribedSku{
		SkuPartNumber: str(m.GetSkuPartNumber()),
	}
	if id := m.GetSkuId(); id != nil {
		s.SkuID = id.String()
	}
	if units := m.GetPrepaidUnits(); units != nil && units.GetEnabled() != nil {
		s.Enabled = int(*units.GetEnabled())
	}
	if consumed := m.GetConsumedUnits(); consumed != nil {
		s.Consumed = int(*consumed)
	}
	return s
}
