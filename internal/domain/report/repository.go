package report

import (
	"context"
	"time"
)

// Repository defines report persistence. Reports are append-only.
type Repository interface {
	// Save inserts a new report and fills in its ID.
	Save(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id int64) (*Report, error)
	ListByUser(ctx context.Context, userID int64) ([]*Report, error) // newest first
	ListSince(ctx context.Context, userID int64, since time.Time) ([]*Report, error)
	// LastStage returns the stage of the most recent report, ok=false when there is none.
	LastStage(ctx context.Context, userID int64) (stage string, ok bool, err error)
	HasAny(ctx context.Context, userID int64) (bool, error)
	// ListStudentsWithoutReportSince returns Telegram IDs of active students with no report at or after since.
	ListStudentsWithoutReportSince(ctx context.Context, since time.Time) ([]int64, error)
	// MarkRead flags a report as read if curatorID is linked to its author.
	// Returns ErrNotAccessible when it is not, and alreadyRead=true when the flag was set before.
	MarkRead(ctx context.Context, reportID, curatorID int64) (alreadyRead bool, err error)
	ListUnreadForCurator(ctx context.Context, curatorID int64) ([]*Entry, error)
	ListAll(ctx context.Context) ([]*Report, error)
}
