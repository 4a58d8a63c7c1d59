package report

import (
	"errors"
	"time"

	"weekly_report_bot/internal/domain/user"
)

var (
	ErrNotFound = errors.New("report not found")
	// ErrNotAccessible is returned when a curator acts on a report of a student they are not linked to.
	ErrNotAccessible = errors.New("report is not accessible to this curator")
)

// Report is one weekly submission. Only IsReadByCurator changes after creation.
type Report struct {
	ID                 int64
	UserID             int64 // author's Telegram ID
	Stage              string
	Plans              string
	PlansCompleted     *bool   // nil when there was no previous report to compare against
	PlansFailureReason *string // set only when PlansCompleted is false
	Problems           string
	IsReadByCurator    bool
	CreatedAt          time.Time
}

// Entry is a report joined with its author's profile, as shown to curators.
type Entry struct {
	Report
	Author user.User
}
