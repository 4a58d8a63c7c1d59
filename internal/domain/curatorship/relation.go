package curatorship

import (
	"errors"
	"time"

	"weekly_report_bot/internal/domain/user"
)

var (
	ErrNoCurator = errors.New("student has no curator")
	// ErrStudentHasCurator is returned when a curator tries to add a student who already belongs to someone else.
	ErrStudentHasCurator = errors.New("student is already assigned to another curator")
	ErrRelationNotFound  = errors.New("curator-student relation not found")
)

// Relation links a curator to a student. A student has at most one curator.
type Relation struct {
	ID        int64
	CuratorID int64
	StudentID int64
	CreatedAt time.Time
}

// Assignment is a student with their curator, if any.
type Assignment struct {
	Student user.User
	Curator *user.User
}

// MissingReport is one curator→student edge where the student has not reported this week.
type MissingReport struct {
	CuratorID int64
	Student   user.User
}

type Stats struct {
	StudentCount  int
	TotalReports  int
	UnreadReports int
}
