package app

import (
	"context"
	"errors"
	"fmt"

	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/user"
)

var ErrNotCurator = errors.New("user is not an active curator")

type CuratorService struct {
	users     user.Repository
	reports   report.Repository
	relations curatorship.Repository
	notifier  Notifier
	adminID   int64
}

func NewCuratorService(ur user.Repository, rr report.Repository, cr curatorship.Repository, notifier Notifier, adminID int64) *CuratorService {
	return &CuratorService{
		users:     ur,
		reports:   rr,
		relations: cr,
		notifier:  notifier,
		adminID:   adminID,
	}
}

// Activate switches the sender into curator mode. Only the administrator and
// users already made curators may do it.
func (s *CuratorService) Activate(ctx context.Context, profile *user.User) error {
	if profile.UserID != s.adminID {
		if err := s.Authorize(ctx, profile.UserID); err != nil {
			return err
		}
	}
	profile.Role = user.RoleCurator
	if err := s.users.AddOrReplace(ctx, profile); err != nil {
		return fmt.Errorf("failed to activate curator: %w", err)
	}
	return nil
}

// Authorize returns ErrNotCurator unless curatorID belongs to an active curator.
func (s *CuratorService) Authorize(ctx context.Context, curatorID int64) error {
	u, err := s.users.GetByUserID(ctx, curatorID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrNotCurator
		}
		return fmt.Errorf("failed to load curator: %w", err)
	}
	if u.Role != user.RoleCurator || !u.IsActive {
		return ErrNotCurator
	}
	return nil
}

// AddStudent links a registered student to the curator and tells the student.
func (s *CuratorService) AddStudent(ctx context.Context, curatorID, studentID int64) (*user.User, error) {
	if err := s.Authorize(ctx, curatorID); err != nil {
		return nil, err
	}
	student, err := s.users.GetByUserID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := s.relations.Add(ctx, curatorID, studentID); err != nil {
		return nil, err
	}
	s.notifier.NotifyStudentCuratorAssigned(ctx, studentID)
	return student, nil
}

func (s *CuratorService) Students(ctx context.Context, curatorID int64) ([]*user.User, error) {
	if err := s.Authorize(ctx, curatorID); err != nil {
		return nil, err
	}
	return s.relations.ListCuratorStudents(ctx, curatorID)
}

func (s *CuratorService) AllStudents(ctx context.Context, curatorID int64) ([]*curatorship.Assignment, error) {
	if err := s.Authorize(ctx, curatorID); err != nil {
		return nil, err
	}
	return s.relations.ListStudentsWithCurators(ctx)
}

func (s *CuratorService) UnreadReports(ctx context.Context, curatorID int64) ([]*report.Entry, error) {
	if err := s.Authorize(ctx, curatorID); err != nil {
		return nil, err
	}
	return s.reports.ListUnreadForCurator(ctx, curatorID)
}

// MarkRead acknowledges a report of one of the curator's students. The student
// is notified only the first time.
func (s *CuratorService) MarkRead(ctx context.Context, curatorID, reportID int64) (bool, error) {
	if err := s.Authorize(ctx, curatorID); err != nil {
		return false, err
	}
	alreadyRead, err := s.reports.MarkRead(ctx, reportID, curatorID)
	if err != nil {
		return false, err
	}
	if alreadyRead {
		return true, nil
	}
	rep, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return false, fmt.Errorf("failed to load read report: %w", err)
	}
	s.notifier.NotifyStudentReportRead(ctx, rep)
	return false, nil
}
