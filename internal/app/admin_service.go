package app

import (
	"context"
	"errors"
	"fmt"

	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/user"
)

// ErrAdminNotAuthorized is returned when anyone but the configured administrator calls an admin operation.
var ErrAdminNotAuthorized = errors.New("performing user is not authorized as an admin")

// DigestSender triggers the curator digest on demand.
type DigestSender interface {
	SendCuratorMissingReportsNotifications(ctx context.Context) (DeliveryStats, error)
}

// CuratorOverview is a curator with their workload.
type CuratorOverview struct {
	Curator *user.User
	Stats   curatorship.Stats
}

type SystemStats struct {
	TotalCurators   int
	TotalStudents   int
	WithCurators    int
	WithoutCurators int
	Curators        []*CuratorOverview
}

type AdminService struct {
	users     user.Repository
	relations curatorship.Repository
	notifier  Notifier
	digests   DigestSender
	adminID   int64
}

func NewAdminService(ur user.Repository, cr curatorship.Repository, notifier Notifier, digests DigestSender, adminID int64) *AdminService {
	return &AdminService{
		users:     ur,
		relations: cr,
		notifier:  notifier,
		digests:   digests,
		adminID:   adminID,
	}
}

func (s *AdminService) IsAdmin(userID int64) bool {
	return userID == s.adminID
}

func (s *AdminService) authorize(performingAdminID int64) error {
	if !s.IsAdmin(performingAdminID) {
		return ErrAdminNotAuthorized
	}
	return nil
}

// AddCurator gives the curator role to a Telegram ID, creating the user if needed.
func (s *AdminService) AddCurator(ctx context.Context, performingAdminID, curatorID int64) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	if err := s.users.SetRole(ctx, curatorID, user.RoleCurator); err != nil {
		return fmt.Errorf("failed to add curator: %w", err)
	}
	return nil
}

// SetCuratorActive returns user.ErrNotFound when curatorID is not a curator.
func (s *AdminService) SetCuratorActive(ctx context.Context, performingAdminID, curatorID int64, active bool) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	return s.users.SetCuratorActive(ctx, curatorID, active)
}

// Assign links the student to the curator, replacing any previous curator, and tells the student.
func (s *AdminService) Assign(ctx context.Context, performingAdminID, curatorID, studentID int64) error {
	if err := s.authorize(performingAdminID); err != nil {
		return err
	}
	if err := s.relations.Assign(ctx, curatorID, studentID); err != nil {
		return fmt.Errorf("failed to assign student: %w", err)
	}
	s.notifier.NotifyStudentCuratorAssigned(ctx, studentID)
	return nil
}

// RemoveRelation detaches the student from their curator and returns that curator.
func (s *AdminService) RemoveRelation(ctx context.Context, performingAdminID, studentID int64) (*user.User, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	curator, err := s.relations.GetStudentCurator(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := s.relations.Remove(ctx, curator.UserID, studentID); err != nil {
		return nil, err
	}
	return curator, nil
}

func (s *AdminService) Curators(ctx context.Context, performingAdminID int64) ([]*CuratorOverview, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	curators, err := s.users.ListCurators(ctx)
	if err != nil {
		return nil, err
	}
	overviews := make([]*CuratorOverview, 0, len(curators))
	for _, c := range curators {
		stats, err := s.relations.CuratorStats(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		overviews = append(overviews, &CuratorOverview{Curator: c, Stats: *stats})
	}
	return overviews, nil
}

// CuratorsByIDs resolves the curators of a numbered choice in the order they were shown.
func (s *AdminService) CuratorsByIDs(ctx context.Context, performingAdminID int64, ids []int64) ([]*user.User, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.users.ListByUserIDs(ctx, ids)
}

func (s *AdminService) Students(ctx context.Context, performingAdminID int64) ([]*curatorship.Assignment, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.relations.ListStudentsWithCurators(ctx)
}

func (s *AdminService) StudentsWithoutCurators(ctx context.Context, performingAdminID int64) ([]*user.User, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.relations.ListStudentsWithoutCurators(ctx)
}

func (s *AdminService) Stats(ctx context.Context, performingAdminID int64) (*SystemStats, error) {
	curators, err := s.Curators(ctx, performingAdminID)
	if err != nil {
		return nil, err
	}
	students, err := s.relations.ListStudentsWithCurators(ctx)
	if err != nil {
		return nil, err
	}
	stats := &SystemStats{
		TotalCurators: len(curators),
		TotalStudents: len(students),
		Curators:      curators,
	}
	for _, a := range students {
		if a.Curator != nil {
			stats.WithCurators++
		}
	}
	stats.WithoutCurators = stats.TotalStudents - stats.WithCurators
	return stats, nil
}

// NotifyCurators sends the missing reports digest right away.
func (s *AdminService) NotifyCurators(ctx context.Context, performingAdminID int64) (DeliveryStats, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return DeliveryStats{}, err
	}
	return s.digests.SendCuratorMissingReportsNotifications(ctx)
}
