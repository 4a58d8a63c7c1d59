package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/user"
)

const reportColumns = `r.id, r.user_id, r.stage, r.plans, r.plans_completed, r.plans_failure_reason,
               r.problems, r.is_read_by_curator, r.created_at`

type PostgresReportRepository struct {
	db *sql.DB
}

func NewPostgresReportRepository(db *sql.DB) *PostgresReportRepository {
	return &PostgresReportRepository{db: db}
}

func scanReport(row rowScanner, extra ...any) (*report.Report, error) {
	rep := &report.Report{}
	var completed sql.NullBool
	var reason sql.NullString
	dest := []any{&rep.ID, &rep.UserID, &rep.Stage, &rep.Plans, &completed, &reason,
		&rep.Problems, &rep.IsReadByCurator, &rep.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if completed.Valid {
		rep.PlansCompleted = &completed.Bool
	}
	if reason.Valid {
		rep.PlansFailureReason = &reason.String
	}
	return rep, nil
}

func (r *PostgresReportRepository) Save(ctx context.Context, rep *report.Report) error {
	query := `INSERT INTO reports (user_id, stage, plans, plans_completed, plans_failure_reason, problems, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               RETURNING id, is_read_by_curator`
	var completed sql.NullBool
	if rep.PlansCompleted != nil {
		completed = sql.NullBool{Bool: *rep.PlansCompleted, Valid: true}
	}
	var reason sql.NullString
	if rep.PlansFailureReason != nil {
		reason = sql.NullString{String: *rep.PlansFailureReason, Valid: true}
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}

	err := r.db.QueryRowContext(ctx, query, rep.UserID, rep.Stage, rep.Plans, completed, reason, rep.Problems, rep.CreatedAt).
		Scan(&rep.ID, &rep.IsReadByCurator)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("error saving report of unknown user %d: %w", rep.UserID, user.ErrNotFound)
		}
		return fmt.Errorf("error saving report: %w", err)
	}
	return nil
}

func (r *PostgresReportRepository) GetByID(ctx context.Context, id int64) (*report.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports r WHERE r.id = $1`
	rep, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, report.ErrNotFound
		}
		return nil, fmt.Errorf("error getting report by ID: %w", err)
	}
	return rep, nil
}

func (r *PostgresReportRepository) ListByUser(ctx context.Context, userID int64) ([]*report.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports r
               WHERE r.user_id = $1
               ORDER BY r.created_at DESC, r.id DESC`
	return r.list(ctx, query, "user reports", userID)
}

func (r *PostgresReportRepository) ListSince(ctx context.Context, userID int64, since time.Time) ([]*report.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports r
               WHERE r.user_id = $1 AND r.created_at >= $2
               ORDER BY r.created_at DESC, r.id DESC`
	return r.list(ctx, query, "reports since week start", userID, since)
}

func (r *PostgresReportRepository) ListAll(ctx context.Context) ([]*report.Report, error) {
	return r.list(ctx, `SELECT `+reportColumns+` FROM reports r ORDER BY r.id`, "all reports")
}

func (r *PostgresReportRepository) LastStage(ctx context.Context, userID int64) (string, bool, error) {
	query := `SELECT stage FROM reports WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var stage string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&stage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("error getting last stage: %w", err)
	}
	return stage, true, nil
}

func (r *PostgresReportRepository) HasAny(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking prior reports: %w", err)
	}
	return exists, nil
}

func (r *PostgresReportRepository) ListStudentsWithoutReportSince(ctx context.Context, since time.Time) ([]int64, error) {
	query := `SELECT u.user_id FROM users u
               WHERE u.role = 'student' AND u.is_active = TRUE
                 AND NOT EXISTS (
                     SELECT 1 FROM reports r WHERE r.user_id = u.user_id AND r.created_at >= $1
                 )
               ORDER BY u.user_id`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("error listing students without report: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning student ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students without report: %w", err)
	}
	return ids, nil
}

func (r *PostgresReportRepository) MarkRead(ctx context.Context, reportID, curatorID int64) (bool, error) {
	query := `WITH target AS (
                   SELECT r.id, r.is_read_by_curator AS was_read
                   FROM reports r
                   JOIN curator_student_relations csr
                     ON csr.student_id = r.user_id AND csr.curator_id = $2
                   WHERE r.id = $1
                   FOR UPDATE OF r
               )
               UPDATE reports SET is_read_by_curator = TRUE
               FROM target WHERE reports.id = target.id
               RETURNING target.was_read`
	var wasRead bool
	err := r.db.QueryRowContext(ctx, query, reportID, curatorID).Scan(&wasRead)
	if err == nil {
		return wasRead, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("error marking report %d as read: %w", reportID, err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, reportID).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking report %d: %w", reportID, err)
	}
	if !exists {
		return false, report.ErrNotFound
	}
	return false, report.ErrNotAccessible
}

func (r *PostgresReportRepository) ListUnreadForCurator(ctx context.Context, curatorID int64) ([]*report.Entry, error) {
	query := `SELECT ` + reportColumns + `, u.username, u.first_name, u.last_name
               FROM reports r
               JOIN curator_student_relations csr ON csr.student_id = r.user_id
               JOIN users u ON u.user_id = r.user_id
               WHERE csr.curator_id = $1 AND r.is_read_by_curator = FALSE
               ORDER BY r.created_at DESC, r.id DESC`
	rows, err := r.db.QueryContext(ctx, query, curatorID)
	if err != nil {
		return nil, fmt.Errorf("error listing unread reports: %w", err)
	}
	defer rows.Close()

	entries := make([]*report.Entry, 0)
	for rows.Next() {
		var author user.User
		rep, err := scanReport(rows, &author.Username, &author.FirstName, &author.LastName)
		if err != nil {
			return nil, fmt.Errorf("error scanning unread report: %w", err)
		}
		author.UserID = rep.UserID
		author.Role = user.RoleStudent
		entries = append(entries, &report.Entry{Report: *rep, Author: author})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unread reports: %w", err)
	}
	return entries, nil
}

func (r *PostgresReportRepository) list(ctx context.Context, query, what string, args ...any) ([]*report.Report, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", what, err)
	}
	defer rows.Close()

	reports := make([]*report.Report, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", what, err)
		}
		reports = append(reports, rep)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}
	return reports, nil
}
