package conversation

import (
	"encoding/json"
	"fmt"
)

// envelope is the flat wire form of every State variant.
type envelope struct {
	Step           Step          `json:"step"`
	Stage          string        `json:"stage,omitempty"`
	PlansCompleted *bool         `json:"plans_completed,omitempty"`
	FailureReason  *string       `json:"failure_reason,omitempty"`
	Plans          string        `json:"plans,omitempty"`
	Action         CuratorAction `json:"action,omitempty"`
	StudentID      int64         `json:"student_id,omitempty"`
	StudentIDs     []int64       `json:"student_ids,omitempty"`
	CuratorIDs     []int64       `json:"curator_ids,omitempty"`
}

// Encode serialises a non-nil state for external stores.
func Encode(st State) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("cannot encode idle state")
	}
	env := envelope{Step: st.Step()}
	switch s := st.(type) {
	case AwaitingStageSelection, AwaitingStudentID, AwaitingRelationStudentID:
	case AwaitingPlansCompletion:
		env.Stage = s.Stage
	case AwaitingFailureReason:
		env.Stage = s.Stage
	case AwaitingPlans:
		env.Stage, env.PlansCompleted, env.FailureReason = s.Stage, s.PlansCompleted, s.FailureReason
	case AwaitingProblems:
		env.Stage, env.PlansCompleted, env.FailureReason = s.Stage, s.PlansCompleted, s.FailureReason
		env.Plans = s.Plans
	case AwaitingCuratorID:
		env.Action = s.Action
	case AwaitingStudentChoice:
		env.StudentIDs, env.CuratorIDs = s.StudentIDs, s.CuratorIDs
	case AwaitingCuratorChoice:
		env.StudentID, env.CuratorIDs = s.StudentID, s.CuratorIDs
	default:
		return nil, fmt.Errorf("unknown conversation state %T", st)
	}
	return json.Marshal(env)
}

// Decode is the inverse of Encode.
func Decode(data []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("error decoding conversation state: %w", err)
	}
	switch env.Step {
	case StepAwaitingStageSelection:
		return AwaitingStageSelection{}, nil
	case StepAwaitingPlansCompletion:
		return AwaitingPlansCompletion{Stage: env.Stage}, nil
	case StepAwaitingFailureReason:
		return AwaitingFailureReason{Stage: env.Stage}, nil
	case StepAwaitingPlans:
		return AwaitingPlans{Stage: env.Stage, PlansCompleted: env.PlansCompleted, FailureReason: env.FailureReason}, nil
	case StepAwaitingProblems:
		return AwaitingProblems{Stage: env.Stage, PlansCompleted: env.PlansCompleted, FailureReason: env.FailureReason, Plans: env.Plans}, nil
	case StepAwaitingStudentID:
		return AwaitingStudentID{}, nil
	case StepAwaitingCuratorID:
		return AwaitingCuratorID{Action: env.Action}, nil
	case StepAwaitingStudentChoice:
		return AwaitingStudentChoice{StudentIDs: env.StudentIDs, CuratorIDs: env.CuratorIDs}, nil
	case StepAwaitingCuratorChoice:
		return AwaitingCuratorChoice{StudentID: env.StudentID, CuratorIDs: env.CuratorIDs}, nil
	case StepAwaitingRelationStudentID:
		return AwaitingRelationStudentID{}, nil
	default:
		return nil, fmt.Errorf("unknown conversation step %q", env.Step)
	}
}
