package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

const DefaultMaxHops = 10

// Dispatcher runs the per-turn state machine. Every non-human state costs
// one hop, the supervisor included; once the hop count passes MaxHops the
// turn ends with the overload message whatever the classifier says.
type Dispatcher struct {
	Registry contractx.Registry
	Policy   HandoffPolicy
	MaxHops  int
	// Entry is the first state of a turn: supervisor normally, or
	// direct_response when the backend cannot route.
	Entry statex.Role
}

func (d Dispatcher) Dispatch(ctx context.Context, in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	if in.LoadFailed {
		in.Reply = contractx.ApologyMessage
		in.Responder = statex.RoleHuman
		return in, nil
	}

	maxHops := d.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	policy := d.Policy
	if policy == nil {
		policy = SingleHop{}
	}
	entry := d.Entry
	if entry == "" {
		entry = statex.RoleSupervisor
	}

	st := in.Session
	st.BeginTurn(in.Text, entry, in.Now)
	turnStart := len(st.Messages)

	var replies []string
	responder := statex.RoleHuman
	for st.ActiveRole != statex.RoleHuman {
		st.HopCount++
		if st.HopCount > maxHops {
			log.Warn().
				Str("session_id", st.SessionID).
				Int("hop_count", st.HopCount).
				Str("role", string(st.ActiveRole)).
				Msg("hop ceiling exceeded")
			// Only the overload notice answers this turn, in the reply and in history.
			replies = []string{contractx.OverloadMessage}
			responder = statex.RoleHuman
			st.Messages = st.Messages[:turnStart]
			st.AppendMessage(statex.MessageAssistant, contractx.OverloadMessage)
			st.ActiveRole = statex.RoleHuman
			break
		}

		role := st.ActiveRole
		var specialist contractx.Specialist
		switch role {
		case statex.RoleSupervisor:
			st.ActiveRole = d.Registry.Classifier().Classify(ctx, contractx.ClassifierRequest{
				UserMessage: in.Text,
				History:     st.Messages,
			})
			log.Debug().Str("session_id", st.SessionID).Str("route", string(st.ActiveRole)).Msg("classified")
			continue
		case statex.RoleConversational:
			specialist = d.Registry.Conversational()
		case statex.RoleDataExtraction:
			specialist = d.Registry.Extraction()
		case statex.RoleRecommendation:
			specialist = d.Registry.Recommendation()
		case statex.RolePlanning:
			specialist = d.Registry.Planning()
		case statex.RoleDirectResponse:
			specialist = d.Registry.Direct()
		default:
			log.Error().Str("role", string(role)).Msg("unknown dispatch state")
			replies = append(replies, contractx.ApologyMessage)
			responder = statex.RoleHuman
			st.ActiveRole = statex.RoleHuman
			continue
		}

		resp, err := specialist.Run(ctx, contractx.SpecialistRequest{UserMessage: in.Text, Session: st})
		if err != nil {
			log.Error().Err(err).Str("session_id", st.SessionID).Str("role", string(role)).Msg("specialist failed")
			replies = append(replies, contractx.ApologyMessage)
			st.AppendMessage(statex.MessageAssistant, contractx.ApologyMessage)
			responder = role
			st.ActiveRole = statex.RoleHuman
			continue
		}

		text := strings.TrimSpace(resp.Message)
		if text == "" {
			text = contractx.ApologyMessage
		}
		applyResponse(in, resp)
		st.AppendMessage(statex.MessageAssistant, text)
		replies = append(replies, text)
		responder = role
		st.ActiveRole = policy.Next(st, role, resp)
	}

	in.Reply = strings.Join(replies, "\n\n")
	in.Responder = responder
	return in, nil
}

// applyResponse merges one specialist's results into the session.
func applyResponse(in *GraphState, resp contractx.SpecialistResponse) {
	st := in.Session
	if resp.Extracted != nil {
		st.MergeExtracted(*resp.Extracted)
	}
	if resp.Planning != nil {
		st.SetPlanning(resp.Planning)
	}
	st.AppendRecommendations(resp.Recommendations)
	if resp.FarmerID > 0 {
		st.FarmerID = resp.FarmerID
	}
	if resp.FarmID > 0 {
		st.FarmID = resp.FarmID
	}
	if resp.RawPayload != "" {
		in.Payloads = append(in.Payloads, resp.RawPayload)
	}
	for _, ev := range resp.Events {
		ev.SessionID = st.SessionID
		in.Events = append(in.Events, ev)
	}
}
