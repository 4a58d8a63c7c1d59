package curatorship

import (
	"context"
	"time"

	"weekly_report_bot/internal/domain/user"
)

// Repository defines operations on the curator/student graph.
type Repository interface {
	// Assign links the student to the curator, replacing any previous curator.
	Assign(ctx context.Context, curatorID, studentID int64) error
	// Add links the student to the curator. Idempotent for the same curator,
	// ErrStudentHasCurator when the student belongs to someone else.
	Add(ctx context.Context, curatorID, studentID int64) error
	Remove(ctx context.Context, curatorID, studentID int64) error
	// GetStudentCurator returns the linked curator even when deactivated, ErrNoCurator when there is none.
	GetStudentCurator(ctx context.Context, studentID int64) (*user.User, error)
	ListCuratorStudents(ctx context.Context, curatorID int64) ([]*user.User, error)
	ListStudentsWithCurators(ctx context.Context) ([]*Assignment, error)
	ListStudentsWithoutCurators(ctx context.Context) ([]*user.User, error)
	CuratorStats(ctx context.Context, curatorID int64) (*Stats, error)
	// ListMissingReports returns active curator→active student edges whose student has no report at or after since.
	ListMissingReports(ctx context.Context, since time.Time) ([]*MissingReport, error)
	ListAll(ctx context.Context) ([]*Relation, error)
}
