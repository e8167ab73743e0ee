package nodes

import (
	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

// HandoffPolicy picks the state after a specialist has answered.
type HandoffPolicy interface {
	Next(st *statex.ConversationState, role statex.Role, resp contractx.SpecialistResponse) statex.Role
}

// SingleHop always yields to the human after one specialist.
type SingleHop struct{}

func (SingleHop) Next(*statex.ConversationState, statex.Role, contractx.SpecialistResponse) statex.Role {
	return statex.RoleHuman
}

// ProactiveRecommendation chains extraction into recommendation once the
// core farm facts are complete and nothing has been recommended yet.
type ProactiveRecommendation struct{}

func (ProactiveRecommendation) Next(st *statex.ConversationState, role statex.Role, resp contractx.SpecialistResponse) statex.Role {
	if role != statex.RoleDataExtraction || resp.Extracted == nil || st == nil {
		return statex.RoleHuman
	}
	if !st.ExtractedData.Complete() || len(st.Recommendations) > 0 || st.FarmID == 0 {
		return statex.RoleHuman
	}
	return statex.RoleRecommendation
}
