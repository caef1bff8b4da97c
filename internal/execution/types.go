package execution

import "github.com/curvesentinel/node/internal/store"

// Request is an alias for the shared ExecutionRequest entity (§3),
// kept local so call sites in this package read as execution.Request.
type Request = store.ExecutionRequest

const (
	ActionFullExit    = store.ExecutionActionFullExit
	ActionPartialSell = store.ExecutionActionPartialSell
	ActionHalt        = store.ExecutionActionHalt
)
