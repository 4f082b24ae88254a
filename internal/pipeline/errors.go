package pipeline

import (
	"errors"
	"fmt"

	"mathforge/internal/state"
)

var (
	// ErrUnknownJob is returned for lookups of job ids the manager
	// never issued or has forgotten.
	ErrUnknownJob = errors.New("pipeline: unknown job id")

	// ErrAlreadyFinished is returned when cancelling a terminal job.
	ErrAlreadyFinished = errors.New("pipeline: job already finished")
)

// Terminal failure reasons carried in State.FailReason. Stage-local
// errors never cross the engine boundary; these do.
const (
	ReasonCancelled = "cancelled"
)

func reasonBudgetExhausted(node state.Role) string {
	return fmt.Sprintf("retry_budget_exhausted:%s", node)
}

func reasonGateway(err error) string {
	return fmt.Sprintf("gateway_failed: %v", err)
}

func reasonCompiler(err error) string {
	return fmt.Sprintf("compiler_unavailable: %v", err)
}
