package app

import (
	"context"
	"fmt"
	"time"

	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/user"
)

type StudentService struct {
	users   user.Repository
	reports report.Repository
	now     func() time.Time
}

func NewStudentService(ur user.Repository, rr report.Repository, now func() time.Time) *StudentService {
	return &StudentService{users: ur, reports: rr, now: now}
}

// Register records the sender's profile. Existing users keep their role.
func (s *StudentService) Register(ctx context.Context, profile *user.User) error {
	if err := s.users.UpsertProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	return nil
}

// CurrentWeekReports returns the student's reports since Monday 00:00, newest first.
func (s *StudentService) CurrentWeekReports(ctx context.Context, userID int64) ([]*report.Report, error) {
	reports, err := s.reports.ListSince(ctx, userID, report.WeekStart(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to load current week reports: %w", err)
	}
	return reports, nil
}

func (s *StudentService) Reports(ctx context.Context, userID int64) ([]*report.Report, error) {
	reports, err := s.reports.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}
	return reports, nil
}
