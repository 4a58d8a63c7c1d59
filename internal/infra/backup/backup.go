package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/user"
)

type UserSource interface {
	ListAll(ctx context.Context) ([]*user.User, error)
}

type ReportSource interface {
	ListAll(ctx context.Context) ([]*report.Report, error)
}

type RelationSource interface {
	ListAll(ctx context.Context) ([]*curatorship.Relation, error)
}

// Snapshot is the on-disk layout of a backup file.
type Snapshot struct {
	CreatedAt time.Time        `yaml:"created_at"`
	Users     []UserRecord     `yaml:"users"`
	Reports   []ReportRecord   `yaml:"reports"`
	Relations []RelationRecord `yaml:"curator_student_relations"`
}

type UserRecord struct {
	ID        int64     `yaml:"id"`
	UserID    int64     `yaml:"user_id"`
	Username  string    `yaml:"username,omitempty"`
	FirstName string    `yaml:"first_name,omitempty"`
	LastName  string    `yaml:"last_name,omitempty"`
	Role      user.Role `yaml:"role"`
	IsActive  bool      `yaml:"is_active"`
	CreatedAt time.Time `yaml:"created_at"`
}

type ReportRecord struct {
	ID                 int64     `yaml:"id"`
	UserID             int64     `yaml:"user_id"`
	Stage              string    `yaml:"stage"`
	Plans              string    `yaml:"plans"`
	PlansCompleted     *bool     `yaml:"plans_completed,omitempty"`
	PlansFailureReason *string   `yaml:"plans_failure_reason,omitempty"`
	Problems           string    `yaml:"problems"`
	IsReadByCurator    bool      `yaml:"is_read_by_curator"`
	CreatedAt          time.Time `yaml:"created_at"`
}

type RelationRecord struct {
	ID        int64     `yaml:"id"`
	CuratorID int64     `yaml:"curator_id"`
	StudentID int64     `yaml:"student_id"`
	CreatedAt time.Time `yaml:"created_at"`
}

type Writer struct {
	users     UserSource
	reports   ReportSource
	relations RelationSource
	dir       string
}

func NewWriter(users UserSource, reports ReportSource, relations RelationSource, dir string) *Writer {
	return &Writer{users: users, reports: reports, relations: relations, dir: dir}
}

// FileName is the snapshot name for a backup taken at t.
func FileName(t time.Time) string {
	return "reports_" + t.Format("20060102_150405") + ".yaml"
}

// Collect reads every table into a Snapshot.
func (w *Writer) Collect(ctx context.Context, now time.Time) (*Snapshot, error) {
	users, err := w.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	reports, err := w.reports.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}
	relations, err := w.relations.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read relations: %w", err)
	}

	snap := &Snapshot{
		CreatedAt: now,
		Users:     make([]UserRecord, 0, len(users)),
		Reports:   make([]ReportRecord, 0, len(reports)),
		Relations: make([]RelationRecord, 0, len(relations)),
	}
	for _, u := range users {
		snap.Users = append(snap.Users, UserRecord{
			ID:        u.ID,
			UserID:    u.UserID,
			Username:  u.Username.String,
			FirstName: u.FirstName.String,
			LastName:  u.LastName.String,
			Role:      u.Role,
			IsActive:  u.IsActive,
			CreatedAt: u.CreatedAt,
		})
	}
	for _, r := range reports {
		snap.Reports = append(snap.Reports, ReportRecord{
			ID:                 r.ID,
			UserID:             r.UserID,
			Stage:              r.Stage,
			Plans:              r.Plans,
			PlansCompleted:     r.PlansCompleted,
			PlansFailureReason: r.PlansFailureReason,
			Problems:           r.Problems,
			IsReadByCurator:    r.IsReadByCurator,
			CreatedAt:          r.CreatedAt,
		})
	}
	for _, rel := range relations {
		snap.Relations = append(snap.Relations, RelationRecord(*rel))
	}
	return snap, nil
}

// Write stores a snapshot taken at now and returns the file path.
func (w *Writer) Write(ctx context.Context, now time.Time) (string, error) {
	snap, err := w.Collect(ctx, now)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	path := filepath.Join(w.dir, FileName(now))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup file: %w", err)
	}
	return path, nil
}
