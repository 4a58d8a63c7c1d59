package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/user"
)

type PostgresRelationRepository struct {
	db *sql.DB
}

func NewPostgresRelationRepository(db *sql.DB) *PostgresRelationRepository {
	return &PostgresRelationRepository{db: db}
}

func (r *PostgresRelationRepository) Assign(ctx context.Context, curatorID, studentID int64) error {
	query := `INSERT INTO curator_student_relations (curator_id, student_id)
               VALUES ($1, $2)
               ON CONFLICT (student_id) DO UPDATE
               SET curator_id = EXCLUDED.curator_id, created_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, curatorID, studentID); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("error assigning student %d to curator %d: %w", studentID, curatorID, user.ErrNotFound)
		}
		return fmt.Errorf("error assigning student %d to curator %d: %w", studentID, curatorID, err)
	}
	return nil
}

func (r *PostgresRelationRepository) Add(ctx context.Context, curatorID, studentID int64) error {
	query := `INSERT INTO curator_student_relations (curator_id, student_id)
               VALUES ($1, $2)
               ON CONFLICT (student_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, curatorID, studentID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("error adding student %d: %w", studentID, user.ErrNotFound)
		}
		return fmt.Errorf("error adding student %d to curator %d: %w", studentID, curatorID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	} else if n == 1 {
		return nil
	}

	var owner int64
	err = r.db.QueryRowContext(ctx, `SELECT curator_id FROM curator_student_relations WHERE student_id = $1`, studentID).Scan(&owner)
	if err != nil {
		return fmt.Errorf("error checking current curator of student %d: %w", studentID, err)
	}
	if owner != curatorID {
		return curatorship.ErrStudentHasCurator
	}
	return nil
}

func (r *PostgresRelationRepository) Remove(ctx context.Context, curatorID, studentID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM curator_student_relations WHERE curator_id = $1 AND student_id = $2`, curatorID, studentID)
	if err != nil {
		return fmt.Errorf("error removing relation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return curatorship.ErrRelationNotFound
	}
	return nil
}

func (r *PostgresRelationRepository) GetStudentCurator(ctx context.Context, studentID int64) (*user.User, error) {
	query := `SELECT u.id, u.user_id, u.username, u.first_name, u.last_name, u.role, u.is_active, u.created_at
               FROM curator_student_relations csr
               JOIN users u ON u.user_id = csr.curator_id
               WHERE csr.student_id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, studentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, curatorship.ErrNoCurator
		}
		return nil, fmt.Errorf("error getting curator of student %d: %w", studentID, err)
	}
	return u, nil
}

func (r *PostgresRelationRepository) ListCuratorStudents(ctx context.Context, curatorID int64) ([]*user.User, error) {
	query := `SELECT u.id, u.user_id, u.username, u.first_name, u.last_name, u.role, u.is_active, u.created_at
               FROM curator_student_relations csr
               JOIN users u ON u.user_id = csr.student_id
               WHERE csr.curator_id = $1
               ORDER BY u.first_name, u.last_name, u.user_id`
	rows, err := r.db.QueryContext(ctx, query, curatorID)
	if err != nil {
		return nil, fmt.Errorf("error listing curator students: %w", err)
	}
	defer rows.Close()

	students := make([]*user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning curator student: %w", err)
		}
		students = append(students, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating curator students: %w", err)
	}
	return students, nil
}

func (r *PostgresRelationRepository) ListStudentsWithCurators(ctx context.Context) ([]*curatorship.Assignment, error) {
	query := `SELECT s.id, s.user_id, s.username, s.first_name, s.last_name, s.role, s.is_active, s.created_at,
                      c.id, c.user_id, c.username, c.first_name, c.last_name, c.role, c.is_active, c.created_at
               FROM users s
               LEFT JOIN curator_student_relations csr ON csr.student_id = s.user_id
               LEFT JOIN users c ON c.user_id = csr.curator_id
               WHERE s.role = 'student'
               ORDER BY s.first_name, s.last_name, s.user_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing students with curators: %w", err)
	}
	defer rows.Close()

	assignments := make([]*curatorship.Assignment, 0)
	for rows.Next() {
		a := &curatorship.Assignment{}
		var sRole string
		var cID, cUserID sql.NullInt64
		var cUsername, cFirst, cLast, cRole sql.NullString
		var cActive sql.NullBool
		var cCreated sql.NullTime
		err := rows.Scan(
			&a.Student.ID, &a.Student.UserID, &a.Student.Username, &a.Student.FirstName, &a.Student.LastName,
			&sRole, &a.Student.IsActive, &a.Student.CreatedAt,
			&cID, &cUserID, &cUsername, &cFirst, &cLast, &cRole, &cActive, &cCreated,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning student assignment: %w", err)
		}
		a.Student.Role = user.Role(sRole)
		if cUserID.Valid {
			a.Curator = &user.User{
				ID:        cID.Int64,
				UserID:    cUserID.Int64,
				Username:  cUsername,
				FirstName: cFirst,
				LastName:  cLast,
				Role:      user.Role(cRole.String),
				IsActive:  cActive.Bool,
				CreatedAt: cCreated.Time,
			}
		}
		assignments = append(assignments, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating student assignments: %w", err)
	}
	return assignments, nil
}

func (r *PostgresRelationRepository) ListStudentsWithoutCurators(ctx context.Context) ([]*user.User, error) {
	query := `SELECT u.id, u.user_id, u.username, u.first_name, u.last_name, u.role, u.is_active, u.created_at
               FROM users u
               WHERE u.role = 'student' AND u.is_active = TRUE
                 AND NOT EXISTS (SELECT 1 FROM curator_student_relations csr WHERE csr.student_id = u.user_id)
               ORDER BY u.created_at, u.user_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing students without curators: %w", err)
	}
	defer rows.Close()

	students := make([]*user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning student without curator: %w", err)
		}
		students = append(students, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students without curators: %w", err)
	}
	return students, nil
}

func (r *PostgresRelationRepository) CuratorStats(ctx context.Context, curatorID int64) (*curatorship.Stats, error) {
	query := `SELECT COUNT(DISTINCT csr.student_id),
                      COUNT(r.id),
                      COUNT(r.id) FILTER (WHERE r.is_read_by_curator = FALSE)
               FROM curator_student_relations csr
               LEFT JOIN reports r ON r.user_id = csr.student_id
               WHERE csr.curator_id = $1`
	s := &curatorship.Stats{}
	if err := r.db.QueryRowContext(ctx, query, curatorID).Scan(&s.StudentCount, &s.TotalReports, &s.UnreadReports); err != nil {
		return nil, fmt.Errorf("error getting curator stats: %w", err)
	}
	return s, nil
}

func (r *PostgresRelationRepository) ListMissingReports(ctx context.Context, since time.Time) ([]*curatorship.MissingReport, error) {
	query := `SELECT csr.curator_id,
                      s.id, s.user_id, s.username, s.first_name, s.last_name, s.role, s.is_active, s.created_at
               FROM curator_student_relations csr
               JOIN users c ON c.user_id = csr.curator_id AND c.is_active = TRUE
               JOIN users s ON s.user_id = csr.student_id AND s.is_active = TRUE
               WHERE NOT EXISTS (
                   SELECT 1 FROM reports r WHERE r.user_id = s.user_id AND r.created_at >= $1
               )
               ORDER BY csr.curator_id, s.first_name, s.last_name, s.user_id`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("error listing missing reports: %w", err)
	}
	defer rows.Close()

	missing := make([]*curatorship.MissingReport, 0)
	for rows.Next() {
		m := &curatorship.MissingReport{}
		var role string
		err := rows.Scan(&m.CuratorID,
			&m.Student.ID, &m.Student.UserID, &m.Student.Username, &m.Student.FirstName, &m.Student.LastName,
			&role, &m.Student.IsActive, &m.Student.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning missing report: %w", err)
		}
		m.Student.Role = user.Role(role)
		missing = append(missing, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating missing reports: %w", err)
	}
	return missing, nil
}

func (r *PostgresRelationRepository) ListAll(ctx context.Context) ([]*curatorship.Relation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, curator_id, student_id, created_at FROM curator_student_relations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing relations: %w", err)
	}
	defer rows.Close()

	relations := make([]*curatorship.Relation, 0)
	for rows.Next() {
		rel := &curatorship.Relation{}
		if err := rows.Scan(&rel.ID, &rel.CuratorID, &rel.StudentID, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning relation: %w", err)
		}
		relations = append(relations, rel)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return relations, nil
}
