package runner

import (
	"context"
)

// State is the lifecycle of a processor run.
//
// Uninitialized -> Recovering -> Live -> Failed. Failed is terminal for the
// current run; whether to restart into Uninitialized is a supervision
// concern.
type State int32

const (
	StateUninitialized State = iota
	StateRecovering
	StateLive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateRecovering:
		return "Recovering"
	case StateLive:
		return "Live"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type Runner interface {
	// Run drives one processor run to completion. It returns nil when ctx
	// is canceled and the run's failure otherwise.
	Run(ctx context.Context) error

	State() State
}
