package pipeline

import "github.com/gren-lang/package-registry/internal/models"

// Action is what the scheduler does with a job after its handler returns.
type Action int

const (
	ActionAdvance Action = iota
	ActionRetry
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionAdvance:
		return "advance"
	case ActionRetry:
		return "retry"
	default:
		return "stop"
	}
}

// Result is the outcome of one step execution.
type Result struct {
	Action Action
	Next   models.Step
	Reason string
}

func Advance(next models.Step) Result { return Result{Action: ActionAdvance, Next: next} }

func Retry(reason string) Result { return Result{Action: ActionRetry, Reason: reason} }

func Stop(reason string) Result { return Result{Action: ActionStop, Reason: reason} }
