package domain

import "fmt"

// Action is the verdict for a request.
type Action uint8

const (
	ActionPass Action = iota
	ActionBlock
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionBlock:
		return "block"
	case ActionRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("Action(%d)", a)
	}
}

// Decision is the outcome of evaluating a RequestEvent.
// Pure value type; the zero value is Pass.
type Decision struct {
	Action Action
	Target string // redirect target, only set for ActionRedirect
	Slot   int    // profile slot of the deciding rule, -1 when no rule matched
	Rule   string // raw text of the deciding rule, empty when no rule matched
}

// PassDecision returns the default decision.
func PassDecision() Decision { return Decision{Action: ActionPass, Slot: -1} }

// HostResponse is the shape the interception host expects back:
// nothing for pass, {cancel:true} to block, {redirectUrl} to redirect.
type HostResponse struct {
	Cancel      bool   `json:"cancel,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// HostResponse converts d to the host's response shape.
func (d Decision) HostResponse() HostResponse {
	switch d.Action {
	case ActionBlock:
		return HostResponse{Cancel: true}
	case ActionRedirect:
		return HostResponse{RedirectURL: d.Target}
	default:
		return HostResponse{}
	}
}
