package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrFailureReasonWithoutFailure = errors.New("failure reason is only allowed when plans were not completed")

var validate = validator.New()

// Submission is what the report dialogue has collected when the student answers the last question.
type Submission struct {
	UserID             int64  `validate:"required"`
	Stage              string `validate:"required,max=255"`
	Plans              string `validate:"required"`
	PlansCompleted     *bool
	PlansFailureReason *string
	Problems           string
}

func (s Submission) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid report submission: %w", err)
	}
	if s.PlansFailureReason != nil && (s.PlansCompleted == nil || *s.PlansCompleted) {
		return ErrFailureReasonWithoutFailure
	}
	return nil
}

// Report builds the row to insert.
func (s Submission) Report(createdAt time.Time) *Report {
	return &Report{
		UserID:             s.UserID,
		Stage:              s.Stage,
		Plans:              s.Plans,
		PlansCompleted:     s.PlansCompleted,
		PlansFailureReason: s.PlansFailureReason,
		Problems:           s.Problems,
		CreatedAt:          createdAt,
	}
}
