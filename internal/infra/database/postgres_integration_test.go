package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/user"
)

var errMissingDSN = errors.New("missing TEST_DATABASE_URL")

var (
	dbOnce sync.Once
	testDB *sql.DB
	dbErr  error
)

// openTestDB connects to TEST_DATABASE_URL, migrates once and empties all tables.
func openTestDB(tb testing.TB) *sql.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_DATABASE_URL")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}
		testDB, dbErr = NewPostgresConnection(context.Background(), dsn)
		if dbErr != nil {
			return
		}
		dbErr = ApplyMigrations(context.Background(), testDB)
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_DATABASE_URL to run repository integration tests")
	}
	require.NoError(tb, dbErr, "failed to init test db")

	_, err := testDB.Exec(`TRUNCATE curator_student_relations, reports, users RESTART IDENTITY CASCADE`)
	require.NoError(tb, err)
	return testDB
}

type fixture struct {
	users     *PostgresUserRepository
	reports   *PostgresReportRepository
	relations *PostgresRelationRepository
}

func newFixture(t *testing.T) fixture {
	db := openTestDB(t)
	return fixture{
		users:     NewPostgresUserRepository(db),
		reports:   NewPostgresReportRepository(db),
		relations: NewPostgresRelationRepository(db),
	}
}

func (f fixture) addUser(t *testing.T, id int64, role user.Role, first, last string) {
	t.Helper()
	u := &user.User{UserID: id, FirstName: user.NullString(first), LastName: user.NullString(last), Role: role}
	require.NoError(t, f.users.AddOrReplace(context.Background(), u))
}

func TestUpsertProfileKeepsCuratorRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, 10, user.RoleCurator, "Анна", "Петрова")

	u := &user.User{UserID: 10, Username: user.NullString("anna")}
	require.NoError(t, f.users.UpsertProfile(ctx, u))
	assert.Equal(t, user.RoleCurator, u.Role)

	got, err := f.users.GetByUserID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "anna", got.Username.String)
	assert.False(t, got.FirstName.Valid)

	_, err = f.users.GetByUserID(ctx, 999)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestSetCuratorActiveAndListCurators(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, 10, user.RoleCurator, "Анна", "Петрова")
	f.addUser(t, 20, user.RoleStudent, "Иван", "Иванов")

	assert.ErrorIs(t, f.users.SetCuratorActive(ctx, 20, false), user.ErrNotFound)
	require.NoError(t, f.users.SetCuratorActive(ctx, 10, false))

	curators, err := f.users.ListCurators(ctx)
	require.NoError(t, err)
	assert.Empty(t, curators)

	require.NoError(t, f.users.SetCuratorActive(ctx, 10, true))
	curators, err = f.users.ListCurators(ctx)
	require.NoError(t, err)
	require.Len(t, curators, 1)
	assert.Equal(t, int64(10), curators[0].UserID)

	require.NoError(t, f.users.SetRole(ctx, 30, user.RoleCurator))
	byIDs, err := f.users.ListByUserIDs(ctx, []int64{30, 10, 404})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, int64(30), byIDs[0].UserID)
	assert.Equal(t, int64(10), byIDs[1].UserID)
}

func TestReportsWeekQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, 20, user.RoleStudent, "Иван", "Иванов")
	f.addUser(t, 21, user.RoleStudent, "Олег", "Сидоров")

	msk, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	now := time.Date(2026, 10, 21, 12, 0, 0, 0, msk)
	weekStart := report.WeekStart(now)

	yes := true
	old := &report.Report{UserID: 20, Stage: report.Stages[0].Value, Plans: "старые планы", CreatedAt: weekStart.Add(-time.Minute)}
	require.NoError(t, f.reports.Save(ctx, old))
	fresh := &report.Report{UserID: 20, Stage: report.Stages[1].Value, Plans: "новые планы", PlansCompleted: &yes, CreatedAt: weekStart}
	require.NoError(t, f.reports.Save(ctx, fresh))
	assert.NotZero(t, fresh.ID)

	current, err := f.reports.ListSince(ctx, 20, weekStart)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, fresh.ID, current[0].ID)
	require.NotNil(t, current[0].PlansCompleted)
	assert.True(t, *current[0].PlansCompleted)
	assert.Nil(t, current[0].PlansFailureReason)

	stage, ok, err := f.reports.LastStage(ctx, 20)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, report.Stages[1].Value, stage)

	_, ok, err = f.reports.LastStage(ctx, 21)
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := f.reports.HasAny(ctx, 21)
	require.NoError(t, err)
	assert.False(t, has)

	missing, err := f.reports.ListStudentsWithoutReportSince(ctx, weekStart)
	require.NoError(t, err)
	assert.Equal(t, []int64{21}, missing)

	all, err := f.reports.ListByUser(ctx, 20)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, fresh.ID, all[0].ID)
}

func TestSaveRejectsFailureReasonOnCompletedPlans(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 20, user.RoleStudent, "Иван", "Иванов")

	yes := true
	reason := "причина"
	err := f.reports.Save(context.Background(), &report.Report{
		UserID: 20, Stage: "s", Plans: "p", PlansCompleted: &yes, PlansFailureReason: &reason,
	})
	assert.Error(t, err)
}

func TestMarkReadIsScopedToTheCurator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, 10, user.RoleCurator, "Анна", "Петрова")
	f.addUser(t, 11, user.RoleCurator, "Мария", "Смирнова")
	f.addUser(t, 20, user.RoleStudent, "Иван", "Иванов")
	require.NoError(t, f.relations.Assign(ctx, 10, 20))

	rep := &report.Report{UserID: 20, Stage: "s", Plans: "p"}
	require.NoError(t, f.reports.Save(ctx, rep))

	_, err := f.reports.MarkRead(ctx, rep.ID, 11)
	assert.ErrorIs(t, err, report.ErrNotAccessible)
	got, err := f.reports.GetByID(ctx, rep.ID)
	require.NoError(t, err)
	assert.False(t, got.IsReadByCurator)

	unread, err := f.reports.ListUnreadForCurator(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Иван Иванов", unread[0].Author.DisplayName())

	already, err := f.reports.MarkRead(ctx, rep.ID, 10)
	require.NoError(t, err)
	assert.False(t, already)
	already, err = f.reports.MarkRead(ctx, rep.ID, 10)
	require.NoError(t, err)
	assert.True(t, already)

	_, err = f.reports.MarkRead(ctx, rep.ID+100, 10)
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestRelationsSingleCurator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, 10, user.RoleCurator, "Анна", "Петрова")
	f.addUser(t, 11, user.RoleCurator, "Мария", "Смирнова")
	f.addUser(t, 20, user.RoleStudent, "Иван", "Иванов")
	f.addUser(t, 21, user.RoleStudent, "Олег", "Сидоров")

	require.NoError(t, f.relations.Add(ctx, 10, 20))
	require.NoError(t, f.relations.Add(ctx, 10, 20))
	assert.ErrorIs(t, f.relations.Add(ctx, 11, 20), curatorship.ErrStudentHasCurator)
	assert.ErrorIs(t, f.relations.Add(ctx, 10, 404), user.ErrNotFound)

	require.NoError(t, f.relations.Assign(ctx, 11, 20))
	curator, err := f.relations.GetStudentCurator(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(11), curator.UserID)

	_, err = f.relations.GetStudentCurator(ctx, 21)
	assert.ErrorIs(t, err, curatorship.ErrNoCurator)

	without, err := f.relations.ListStudentsWithoutCurators(ctx)
	require.NoError(t, err)
	require.Len(t, without, 1)
	assert.Equal(t, int64(21), without[0].UserID)

	assignments, err := f.relations.ListStudentsWithCurators(ctx)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	assert.ErrorIs(t, f.relations.Remove(ctx, 10, 20), curatorship.ErrRelationNotFound)
	require.NoError(t, f.relations.Remove(ctx, 11, 20))

	rels, err := f.relations.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestMissingReportsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, 10, user.RoleCurator, "Анна", "Петрова")
	f.addUser(t, 20, user.RoleStudent, "Иван", "Иванов")
	f.addUser(t, 21, user.RoleStudent, "Олег", "Сидоров")
	require.NoError(t, f.relations.Assign(ctx, 10, 20))
	require.NoError(t, f.relations.Assign(ctx, 10, 21))

	now := time.Now()
	require.NoError(t, f.reports.Save(ctx, &report.Report{UserID: 20, Stage: "s", Plans: "p", CreatedAt: now}))

	missing, err := f.relations.ListMissingReports(ctx, report.WeekStart(now))
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, int64(10), missing[0].CuratorID)
	assert.Equal(t, int64(21), missing[0].Student.UserID)

	stats, err := f.relations.CuratorStats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, curatorship.Stats{StudentCount: 2, TotalReports: 1, UnreadReports: 1}, *stats)

	require.NoError(t, f.users.SetCuratorActive(ctx, 10, false))
	missing, err = f.relations.ListMissingReports(ctx, report.WeekStart(now))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
