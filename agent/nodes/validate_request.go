package nodes

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

var ErrInvalidMessage = errors.New("message is empty")

type GraphInput struct {
	SessionID string
	Text      string
	// NewSession is set when SessionID was minted for this turn.
	NewSession bool
}

type GraphOutput struct {
	Advice contractx.Advice
}

// GraphState is threaded through every node of one turn.
type GraphState struct {
	SessionID  string
	Text       string
	Now        time.Time
	NewSession bool

	Session *statex.ConversationState
	// LoadFailed marks a turn whose session could not be read. Such a turn
	// answers with an apology and writes nothing back.
	LoadFailed bool

	Reply     string
	Responder statex.Role
	Payloads  []string
	Events    []contractx.Event
}

// ValidateRequest checks the input and assigns a session id when the caller
// supplied none.
func ValidateRequest(in GraphInput, nowFn func() time.Time, newID func() string) (*GraphState, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	st := &GraphState{
		SessionID:  strings.TrimSpace(in.SessionID),
		Text:       text,
		Now:        nowFn().UTC(),
		NewSession: in.NewSession,
	}
	if st.SessionID == "" {
		st.SessionID = newID()
		st.NewSession = true
	}
	return st, nil
}
