package nodes

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
)

func FinalizeReply(in *GraphState, debug bool) (GraphOutput, error) {
	if in == nil || in.Session == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		reply = contractx.ApologyMessage
	}

	st := in.Session
	advice := contractx.Advice{
		AssistantText:   reply,
		SessionID:       in.SessionID,
		ExtractedData:   st.ExtractedData,
		PlanningData:    st.PlanningData,
		Recommendations: append([]string(nil), st.Recommendations...),
		ActiveRole:      in.Responder,
		HopCount:        st.HopCount,
	}
	if debug {
		advice.RawPayloads = append([]string(nil), in.Payloads...)
	}
	return GraphOutput{Advice: advice}, nil
}
