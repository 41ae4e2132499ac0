package transform

import (
	"sort"
	"strings"

	"github.com/Mythidas/MSPByte-sub000/pkg/provider/graph"
)

// Method is the normalized authentication method enum.
type Method string

const (
	MethodSMS                     Method = "sms"
	MethodMobileApp               Method = "mobileApp"
	MethodWindowsHelloForBusiness Method = "windowsHelloForBusiness"
	MethodFido2                   Method = "fido2"
	MethodTemporaryAccessPass     Method = "temporaryAccessPass"
	MethodEmail                   Method = "email"
	MethodVoice                   Method = "voice"
	MethodPassword                Method = "password"
	MethodUnknown                 Method = "unknown"
)

var methodsByType = map[string]Method{
	"microsoftauthenticatorauthenticationmethod":  MethodMobileApp,
	"softwareoathauthenticationmethod":            MethodMobileApp,
	"windowshelloforbusinessauthenticationmethod": MethodWindowsHelloForBusiness,
	"fido2authenticationmethod":                   MethodFido2,
	"temporaryaccesspassauthenticationmethod":     MethodTemporaryAccessPass,
	"emailauthenticationmethod":                   MethodEmail,
	"passwordauthenticationmethod":                MethodPassword,
}

// NormalizeMethod maps a Graph authentication method to the closed enum.
// Phone methods registered on a mobile number count as sms, office and
// alternate numbers as voice.
func NormalizeMethod(m graph.AuthenticationMethod) Method {
	t := strings.ToLower(strings.TrimPrefix(m.ODataType, "#microsoft.graph."))
	if t == "phoneauthenticationmethod" {
		if strings.EqualFold(m.PhoneType, "mobile") {
			return MethodSMS
		}
		return MethodVoice
	}
	if method, ok := methodsByType[t]; ok {
		return method
	}
	return MethodUnknown
}

// NormalizeMethods returns the distinct normalized methods in sorted order.
func NormalizeMethods(methods []graph.AuthenticationMethod) []string {
	seen := map[Method]struct{}{}
	out := []string{}
	for _, m := range methods {
		n := NormalizeMethod(m)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, string(n))
	}
	sort.Strings(out)
	return out
}
