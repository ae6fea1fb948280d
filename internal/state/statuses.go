package state

// ScheduleState tracks an obligation's relationship to its external scheduled
// job.
type ScheduleState string

const (
	// StateUnscheduled is the initial state: no job registered.
	StateUnscheduled ScheduleState = "unscheduled"
	// StateScheduled means a job is registered and the obligation row
	// references it.
	StateScheduled ScheduleState = "scheduled"
	// StateRemoved is terminal: the obligation row and its job are gone.
	StateRemoved ScheduleState = "removed"
)

func (s ScheduleState) String() string {
	return string(s)
}

var AllStates = []ScheduleState{
	StateUnscheduled,
	StateScheduled,
	StateRemoved,
}

type Transition struct {
	From ScheduleState
	To   ScheduleState
}

// ValidTransitions: create schedules, update reschedules, delete removes.
var ValidTransitions = []Transition{
	{From: StateUnscheduled, To: StateScheduled},
	{From: StateScheduled, To: StateScheduled},
	{From: StateScheduled, To: StateRemoved},
}

func IsValidTransition(from, to ScheduleState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// StateOf derives the schedule state from a job reference.
func StateOf(jobRef *int64) ScheduleState {
	if jobRef == nil {
		return StateUnscheduled
	}
	return StateScheduled
}
