// Package conversation holds the per-user dialogue states. A nil State means
// the user is idle.
package conversation

import "context"

type Step string

const (
	StepIdle Step = "idle"

	StepAwaitingStageSelection  Step = "report.awaiting_stage_selection"
	StepAwaitingPlansCompletion Step = "report.awaiting_plans_completion"
	StepAwaitingFailureReason   Step = "report.awaiting_failure_reason"
	StepAwaitingPlans           Step = "report.awaiting_plans"
	StepAwaitingProblems        Step = "report.awaiting_problems"

	StepAwaitingStudentID Step = "curator.awaiting_student_id"

	StepAwaitingCuratorID         Step = "admin.awaiting_curator_id"
	StepAwaitingStudentChoice     Step = "admin.awaiting_student_choice"
	StepAwaitingCuratorChoice     Step = "admin.awaiting_curator_choice"
	StepAwaitingRelationStudentID Step = "admin.awaiting_relation_student_id"
)

// State is one variant per dialogue step, carrying only what that step needs.
type State interface {
	Step() Step
}

// Store keeps the current State per user.
type Store interface {
	// Get returns nil when the user has no active dialogue.
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, st State) error
	Clear(ctx context.Context, userID int64) error
}

// StepOf returns StepIdle for a nil state.
func StepOf(st State) Step {
	if st == nil {
		return StepIdle
	}
	return st.Step()
}

// Report submission.

type AwaitingStageSelection struct{}

type AwaitingPlansCompletion struct {
	Stage string
}

type AwaitingFailureReason struct {
	Stage string
}

type AwaitingPlans struct {
	Stage          string
	PlansCompleted *bool
	FailureReason  *string
}

type AwaitingProblems struct {
	Stage          string
	PlansCompleted *bool
	FailureReason  *string
	Plans          string
}

func (AwaitingStageSelection) Step() Step  { return StepAwaitingStageSelection }
func (AwaitingPlansCompletion) Step() Step { return StepAwaitingPlansCompletion }
func (AwaitingFailureReason) Step() Step   { return StepAwaitingFailureReason }
func (AwaitingPlans) Step() Step           { return StepAwaitingPlans }
func (AwaitingProblems) Step() Step        { return StepAwaitingProblems }

// Curator self-service.

type AwaitingStudentID struct{}

func (AwaitingStudentID) Step() Step { return StepAwaitingStudentID }

// Administrator flows.

type CuratorAction string

const (
	CuratorActionAdd        CuratorAction = "add"
	CuratorActionDeactivate CuratorAction = "deactivate"
	CuratorActionActivate   CuratorAction = "activate"
)

type AwaitingCuratorID struct {
	Action CuratorAction
}

// AwaitingStudentChoice holds the numbered lists shown to the admin, so the
// answer refers to what they saw.
type AwaitingStudentChoice struct {
	StudentIDs []int64
	CuratorIDs []int64
}

type AwaitingCuratorChoice struct {
	StudentID  int64
	CuratorIDs []int64
}

type AwaitingRelationStudentID struct{}

func (AwaitingCuratorID) Step() Step         { return StepAwaitingCuratorID }
func (AwaitingStudentChoice) Step() Step     { return StepAwaitingStudentChoice }
func (AwaitingCuratorChoice) Step() Step     { return StepAwaitingCuratorChoice }
func (AwaitingRelationStudentID) Step() Step { return StepAwaitingRelationStudentID }
