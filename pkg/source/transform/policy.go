package transform

import (
	"github.com/Mythidas/MSPByte-sub000/pkg/provider/graph"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
)

const PolicyTypeConditionalAccess = "conditional_access"

func policyStatus(state string) model.PolicyStatus {
	switch state {
	case stateEnabled:
		return model.PolicyStatusEnabled
	case "enabledForReportingButNotEnforced":
		return model.PolicyStatusReportOnly
	}
	return model.PolicyStatusDisabled
}

func Policies(scope model.Scope, policies []graph.ConditionalAccessPolicy) []*model.SourcePolicy {
	out := make([]*model.SourcePolicy, 0, len(policies))
	for _, p := range policies {
		out = append(out, &model.SourcePolicy{
			Scope:      scope,
			ExternalID: p.ID,
			Name:       p.DisplayName,
			Type:       PolicyTypeConditionalAccess,
			Status:     policyStatus(p.State),
			Metadata:   marshal(p),
		})
	}
	return out
}
