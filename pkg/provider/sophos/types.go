package sophos

import (
	"encoding/json"
	"time"
)

type Credentials struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
}

type WhoAmI struct {
	ID       string `json:"id"`
	IDType   string `json:"idType"`
	APIHosts struct {
		Global     string `json:"global"`
		DataRegion string `json:"dataRegion"`
	} `json:"apiHosts"`
}

type Tenant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DataGeography string `json:"dataGeography"`
	DataRegion    string `json:"dataRegion"`
	BillingType   string `json:"billingType"`
	APIHost       string `json:"apiHost"`
	Status        string `json:"status"`
}

type EndpointOS struct {
	IsServer     bool   `json:"isServer"`
	Platform     string `json:"platform"`
	Name         string `json:"name"`
	MajorVersion int    `json:"majorVersion"`
	MinorVersion int    `json:"minorVersion"`
	Build        int    `json:"build"`
}

type EndpointHealth struct {
	Overall string `json:"overall"`
	Threats struct {
		Status string `json:"status"`
	} `json:"threats"`
	Services struct {
		Status string `json:"status"`
	} `json:"services"`
}

type Endpoint struct {
	ID                      string         `json:"id"`
	Type                    string         `json:"type"`
	Hostname                string         `json:"hostname"`
	SerialNumber            string         `json:"serialNumber"`
	OS                      EndpointOS     `json:"os"`
	Health                  EndpointHealth `json:"health"`
	TamperProtectionEnabled bool           `json:"tamperProtectionEnabled"`
	MDRManaged              bool           `json:"mdrManaged"`
	LastSeenAt              *time.Time     `json:"lastSeenAt"`
	Packages                struct {
		Protection struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"protection"`
	} `json:"packages"`

	// Raw is the endpoint document as returned by Sophos.
	Raw json.RawMessage `json:"-"`
}

type tenantPage struct {
	Items []Tenant `json:"items"`
	Pages struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	} `json:"pages"`
}

type endpointPage struct {
	Items []json.RawMessage `json:"items"`
	Pages struct {
		NextKey string `json:"nextKey"`
	} `json:"pages"`
}
