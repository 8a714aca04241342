package stateManager

import (
	"errors"
	"fmt"

	"dstg/gui"
)

var (
	// The partition was violated: a snapshot has no abstract state while the graph is being updated.
	ErrLookupFailure = errors.New("stateManager: no abstract state for snapshot")
	// Escalation was exhausted for an ambiguity. Never returned, the ambiguity is recorded as abandoned instead.
	ErrAmbiguityExhausted = errors.New("stateManager: ambiguity could not be refined")

	ErrUnknownSnapshot    = errors.New("stateManager: unknown snapshot")
	ErrUnknownInteraction = errors.New("stateManager: unknown interaction")
	ErrNotInitialized     = errors.New("stateManager: manager has not been initialized")
)

// The role a snapshot played when its lookup failed.
type Role string

const (
	RolePrevState Role = "prevState"
	RoleResState  Role = "resState"
	RoleMember    Role = "member"
)

// Returned when a snapshot could not be resolved to an abstract state.
type LookupError struct {
	StateID gui.StateID
	Role    Role
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("stateManager: no abstract state for %s %s", e.Role, e.StateID)
}

func (e *LookupError) Unwrap() error {
	return ErrLookupFailure
}
