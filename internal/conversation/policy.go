package conversation

import (
	"fmt"

	"github.com/jamiechicago312/agent-sdk/internal/tools"
	"github.com/jamiechicago312/agent-sdk/pkg/events"
)

// ConfirmationPolicy decides whether pending actions need user approval
// before execution.
type ConfirmationPolicy interface {
	// Name identifies the policy in persisted state and API payloads.
	Name() string

	// RequiresConfirmation reports whether the action must wait for the
	// user. The tool is nil when the action names an unknown tool.
	RequiresConfirmation(action events.ActionPayload, tool *tools.Tool) bool
}

type neverConfirm struct{}

func (neverConfirm) Name() string { return "never" }
func (neverConfirm) RequiresConfirmation(events.ActionPayload, *tools.Tool) bool {
	return false
}

type alwaysConfirm struct{}

func (alwaysConfirm) Name() string { return "always" }
func (alwaysConfirm) RequiresConfirmation(events.ActionPayload, *tools.Tool) bool {
	return true
}

type confirmRisky struct{}

func (confirmRisky) Name() string { return "risky" }

// RequiresConfirmation flags tools whose annotations mark them as
// destructive or not read-only. Unknown tools are treated as risky.
func (confirmRisky) RequiresConfirmation(_ events.ActionPayload, tool *tools.Tool) bool {
	if tool == nil {
		return true
	}
	a := tool.Annotations
	if a.DestructiveHint {
		return true
	}
	return !a.ReadOnlyHint
}

// NeverConfirm executes every action immediately.
func NeverConfirm() ConfirmationPolicy { return neverConfirm{} }

// AlwaysConfirm suspends before executing any action.
func AlwaysConfirm() ConfirmationPolicy { return alwaysConfirm{} }

// ConfirmRisky suspends only for actions whose tool annotations mark
// them destructive or mutating.
func ConfirmRisky() ConfirmationPolicy { return confirmRisky{} }

// PolicyByName resolves a policy name from config or the API.
func PolicyByName(name string) (ConfirmationPolicy, error) {
	switch name {
	case "", "never":
		return NeverConfirm(), nil
	case "always":
		return AlwaysConfirm(), nil
	case "risky":
		return ConfirmRisky(), nil
	default:
		return nil, fmt.Errorf("unknown confirmation policy %q", name)
	}
}
