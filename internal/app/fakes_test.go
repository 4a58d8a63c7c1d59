package app

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"weekly_report_bot/internal/domain/conversation"
	"weekly_report_bot/internal/domain/curatorship"
	"weekly_report_bot/internal/domain/report"
	"weekly_report_bot/internal/domain/telegram"
	"weekly_report_bot/internal/domain/user"
	"weekly_report_bot/internal/infra/statestore"
)

// memDB backs the in-memory repositories used by the tests.
type memDB struct {
	mu        sync.Mutex
	users     map[int64]*user.User
	reports   []*report.Report
	relations map[int64]int64 // student -> curator
	nextID    int64
	now       func() time.Time

	saveErr error
}

func newMemDB(now func() time.Time) *memDB {
	return &memDB{
		users:     make(map[int64]*user.User),
		relations: make(map[int64]int64),
		now:       now,
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memDB) sortedUsers(keep func(*user.User) bool) []*user.User {
	out := make([]*user.User, 0)
	for _, u := range db.users {
		if keep(u) {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

type fakeUsers struct{ db *memDB }

func (f fakeUsers) AddOrReplace(_ context.Context, u *user.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if u.Role == "" {
		u.Role = user.RoleStudent
	}
	stored, ok := f.db.users[u.UserID]
	if !ok {
		stored = &user.User{ID: f.db.id(), UserID: u.UserID, CreatedAt: f.db.now()}
		f.db.users[u.UserID] = stored
	}
	stored.Username, stored.FirstName, stored.LastName = u.Username, u.FirstName, u.LastName
	stored.Role = u.Role
	stored.IsActive = true
	*u = *stored
	return nil
}

func (f fakeUsers) UpsertProfile(_ context.Context, u *user.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	stored, ok := f.db.users[u.UserID]
	if !ok {
		stored = &user.User{ID: f.db.id(), UserID: u.UserID, Role: user.RoleStudent, IsActive: true, CreatedAt: f.db.now()}
		f.db.users[u.UserID] = stored
	}
	stored.Username, stored.FirstName, stored.LastName = u.Username, u.FirstName, u.LastName
	*u = *stored
	return nil
}

func (f fakeUsers) GetByUserID(_ context.Context, userID int64) (*user.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[userID]
	if !ok {
		return nil, user.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f fakeUsers) ListByUserIDs(_ context.Context, ids []int64) ([]*user.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := f.db.users[id]; ok {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f fakeUsers) SetRole(_ context.Context, userID int64, role user.Role) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[userID]
	if !ok {
		u = &user.User{ID: f.db.id(), UserID: userID, CreatedAt: f.db.now()}
		f.db.users[userID] = u
	}
	u.Role = role
	u.IsActive = true
	return nil
}

func (f fakeUsers) SetCuratorActive(_ context.Context, userID int64, active bool) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[userID]
	if !ok || u.Role != user.RoleCurator {
		return user.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (f fakeUsers) ListCurators(_ context.Context) ([]*user.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.sortedUsers(func(u *user.User) bool { return u.Role == user.RoleCurator && u.IsActive }), nil
}

func (f fakeUsers) ListAll(_ context.Context) ([]*user.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.sortedUsers(func(*user.User) bool { return true }), nil
}

type fakeReports struct{ db *memDB }

func cloneReport(r *report.Report) *report.Report {
	c := *r
	return &c
}

// newestFirst returns the reports matching keep, newest first.
func (db *memDB) newestFirst(keep func(*report.Report) bool) []*report.Report {
	out := make([]*report.Report, 0)
	for _, r := range db.reports {
		if keep(r) {
			out = append(out, cloneReport(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (f fakeReports) Save(_ context.Context, r *report.Report) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.saveErr != nil {
		return f.db.saveErr
	}
	if _, ok := f.db.users[r.UserID]; !ok {
		return user.ErrNotFound
	}
	r.ID = f.db.id()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = f.db.now()
	}
	f.db.reports = append(f.db.reports, cloneReport(r))
	return nil
}

func (f fakeReports) GetByID(_ context.Context, id int64) (*report.Report, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, r := range f.db.reports {
		if r.ID == id {
			return cloneReport(r), nil
		}
	}
	return nil, report.ErrNotFound
}

func (f fakeReports) ListByUser(_ context.Context, userID int64) ([]*report.Report, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.newestFirst(func(r *report.Report) bool { return r.UserID == userID }), nil
}

func (f fakeReports) ListSince(_ context.Context, userID int64, since time.Time) ([]*report.Report, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.newestFirst(func(r *report.Report) bool {
		return r.UserID == userID && !r.CreatedAt.Before(since)
	}), nil
}

func (f fakeReports) LastStage(ctx context.Context, userID int64) (string, bool, error) {
	reports, _ := f.ListByUser(ctx, userID)
	if len(reports) == 0 {
		return "", false, nil
	}
	return reports[0].Stage, true, nil
}

func (f fakeReports) HasAny(ctx context.Context, userID int64) (bool, error) {
	reports, _ := f.ListByUser(ctx, userID)
	return len(reports) > 0, nil
}

func (db *memDB) hasReportSince(userID int64, since time.Time) bool {
	for _, r := range db.reports {
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			return true
		}
	}
	return false
}

func (f fakeReports) ListStudentsWithoutReportSince(_ context.Context, since time.Time) ([]int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	students := f.db.sortedUsers(func(u *user.User) bool {
		return u.Role == user.RoleStudent && u.IsActive && !f.db.hasReportSince(u.UserID, since)
	})
	ids := make([]int64, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.UserID)
	}
	return ids, nil
}

func (f fakeReports) MarkRead(_ context.Context, reportID, curatorID int64) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, r := range f.db.reports {
		if r.ID != reportID {
			continue
		}
		if owner, ok := f.db.relations[r.UserID]; !ok || owner != curatorID {
			return false, report.ErrNotAccessible
		}
		was := r.IsReadByCurator
		r.IsReadByCurator = true
		return was, nil
	}
	return false, report.ErrNotFound
}

func (f fakeReports) ListUnreadForCurator(_ context.Context, curatorID int64) ([]*report.Entry, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	reports := f.db.newestFirst(func(r *report.Report) bool {
		owner, ok := f.db.relations[r.UserID]
		return ok && owner == curatorID && !r.IsReadByCurator
	})
	entries := make([]*report.Entry, 0, len(reports))
	for _, r := range reports {
		entries = append(entries, &report.Entry{Report: *r, Author: *f.db.users[r.UserID]})
	}
	return entries, nil
}

func (f fakeReports) ListAll(_ context.Context) ([]*report.Report, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.newestFirst(func(*report.Report) bool { return true }), nil
}

type fakeRelations struct{ db *memDB }

func (f fakeRelations) Assign(_ context.Context, curatorID, studentID int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.users[curatorID] == nil || f.db.users[studentID] == nil {
		return user.ErrNotFound
	}
	f.db.relations[studentID] = curatorID
	return nil
}

func (f fakeRelations) Add(_ context.Context, curatorID, studentID int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.users[curatorID] == nil || f.db.users[studentID] == nil {
		return user.ErrNotFound
	}
	if owner, ok := f.db.relations[studentID]; ok && owner != curatorID {
		return curatorship.ErrStudentHasCurator
	}
	f.db.relations[studentID] = curatorID
	return nil
}

func (f fakeRelations) Remove(_ context.Context, curatorID, studentID int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if owner, ok := f.db.relations[studentID]; !ok || owner != curatorID {
		return curatorship.ErrRelationNotFound
	}
	delete(f.db.relations, studentID)
	return nil
}

func (f fakeRelations) GetStudentCurator(_ context.Context, studentID int64) (*user.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	owner, ok := f.db.relations[studentID]
	if !ok {
		return nil, curatorship.ErrNoCurator
	}
	c := *f.db.users[owner]
	return &c, nil
}

func (f fakeRelations) ListCuratorStudents(_ context.Context, curatorID int64) ([]*user.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.sortedUsers(func(u *user.User) bool {
		owner, ok := f.db.relations[u.UserID]
		return ok && owner == curatorID
	}), nil
}

func (f fakeRelations) ListStudentsWithCurators(_ context.Context) ([]*curatorship.Assignment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	students := f.db.sortedUsers(func(u *user.User) bool { return u.Role == user.RoleStudent })
	out := make([]*curatorship.Assignment, 0, len(students))
	for _, s := range students {
		a := &curatorship.Assignment{Student: *s}
		if owner, ok := f.db.relations[s.UserID]; ok {
			c := *f.db.users[owner]
			a.Curator = &c
		}
		out = append(out, a)
	}
	return out, nil
}

func (f fakeRelations) ListStudentsWithoutCurators(_ context.Context) ([]*user.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.sortedUsers(func(u *user.User) bool {
		_, linked := f.db.relations[u.UserID]
		return u.Role == user.RoleStudent && u.IsActive && !linked
	}), nil
}

func (f fakeRelations) CuratorStats(_ context.Context, curatorID int64) (*curatorship.Stats, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s := &curatorship.Stats{}
	for studentID, owner := range f.db.relations {
		if owner != curatorID {
			continue
		}
		s.StudentCount++
		for _, r := range f.db.reports {
			if r.UserID == studentID {
				s.TotalReports++
				if !r.IsReadByCurator {
					s.UnreadReports++
				}
			}
		}
	}
	return s, nil
}

func (f fakeRelations) ListMissingReports(_ context.Context, since time.Time) ([]*curatorship.MissingReport, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	students := f.db.sortedUsers(func(u *user.User) bool {
		owner, ok := f.db.relations[u.UserID]
		return ok && u.IsActive && f.db.users[owner].IsActive && !f.db.hasReportSince(u.UserID, since)
	})
	out := make([]*curatorship.MissingReport, 0, len(students))
	for _, s := range students {
		out = append(out, &curatorship.MissingReport{CuratorID: f.db.relations[s.UserID], Student: *s})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CuratorID < out[j].CuratorID })
	return out, nil
}

func (f fakeRelations) ListAll(_ context.Context) ([]*curatorship.Relation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := make([]*curatorship.Relation, 0, len(f.db.relations))
	for studentID, curatorID := range f.db.relations {
		out = append(out, &curatorship.Relation{CuratorID: curatorID, StudentID: studentID})
	}
	return out, nil
}

type sentMessage struct {
	RecipientID int64
	Text        string
}

// fakeClient records deliveries. Errors queued per recipient are returned
// one per attempt before deliveries start succeeding.
type fakeClient struct {
	mu       sync.Mutex
	sent     []sentMessage
	attempts map[int64]int
	failures map[int64][]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{attempts: make(map[int64]int), failures: make(map[int64][]error)}
}

func (c *fakeClient) failWith(recipientID int64, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[recipientID] = append(c.failures[recipientID], errs...)
}

func (c *fakeClient) SendMessage(recipientID int64, text string, _ *telebot.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[recipientID]++
	if queued := c.failures[recipientID]; len(queued) > 0 {
		err := queued[0]
		// Permanent failures stay queued so every attempt sees them.
		if !telegram.IsPermanent(err) {
			c.failures[recipientID] = queued[1:]
		}
		return err
	}
	c.sent = append(c.sent, sentMessage{RecipientID: recipientID, Text: text})
	return nil
}

func (c *fakeClient) to(recipientID int64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.sent {
		if m.RecipientID == recipientID {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeResponder struct {
	sent    []string
	markups []*telebot.ReplyMarkup
	edits   []string
	answers []string
}

func (r *fakeResponder) Send(text string, opts *telebot.SendOptions) error {
	r.sent = append(r.sent, text)
	if opts != nil {
		r.markups = append(r.markups, opts.ReplyMarkup)
	} else {
		r.markups = append(r.markups, nil)
	}
	return nil
}

func (r *fakeResponder) Edit(text string, _ *telebot.SendOptions) error {
	r.edits = append(r.edits, text)
	return nil
}

func (r *fakeResponder) Answer(text string) error {
	r.answers = append(r.answers, text)
	return nil
}

func (r *fakeResponder) last() string {
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1]
}

func (r *fakeResponder) all() string {
	return strings.Join(r.sent, "\n---\n")
}

const testAdminID int64 = 1

var msk = time.FixedZone("MSK", 3*60*60)

type harness struct {
	t       *testing.T
	now     time.Time
	db      *memDB
	users   fakeUsers
	reports fakeReports
	rels    fakeRelations
	client  *fakeClient
	states  *statestore.Memory
	notify  *NotificationService
	disp    *Dispatcher
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:      t,
		now:    time.Date(2026, 10, 21, 12, 0, 0, 0, msk), // Wednesday
		client: newFakeClient(),
		states: statestore.NewMemory(),
	}
	now := func() time.Time { return h.now }
	h.db = newMemDB(now)
	h.users = fakeUsers{db: h.db}
	h.reports = fakeReports{db: h.db}
	h.rels = fakeRelations{db: h.db}

	logger := discardLogger()
	h.notify = NewNotificationService(h.reports, h.rels, h.client, logger, NotificationOptions{
		RetryInterval: time.Millisecond,
		Concurrency:   4,
		Now:           now,
	})
	dialogue := NewReportDialogue(h.users, h.reports, h.rels, h.states, h.notify, logger, now, 0)
	h.disp = NewDispatcher(
		NewStudentService(h.users, h.reports, now),
		NewCuratorService(h.users, h.reports, h.rels, h.notify, testAdminID),
		NewAdminService(h.users, h.rels, h.notify, h.notify, testAdminID),
		dialogue,
		h.users,
		h.states,
		logger,
		now,
	)
	return h
}

func (h *harness) say(userID int64, text string) *fakeResponder {
	r := &fakeResponder{}
	h.disp.Dispatch(context.Background(), Update{UserID: userID, FirstName: "User", Text: text}, r)
	return r
}

func (h *harness) press(userID int64, data, messageText string) *fakeResponder {
	r := &fakeResponder{}
	h.disp.Dispatch(context.Background(), Update{UserID: userID, Callback: data, MessageText: messageText}, r)
	return r
}

func (h *harness) state(userID int64) conversation.State {
	st, err := h.states.Get(context.Background(), userID)
	if err != nil {
		h.t.Fatalf("state lookup failed: %v", err)
	}
	return st
}

func (h *harness) addUser(userID int64, firstName string, role user.Role) {
	u := &user.User{UserID: userID, FirstName: user.NullString(firstName), LastName: user.NullString("Test"), Role: role}
	if err := h.users.AddOrReplace(context.Background(), u); err != nil {
		h.t.Fatalf("add user: %v", err)
	}
}

func (h *harness) link(curatorID, studentID int64) {
	if err := h.rels.Assign(context.Background(), curatorID, studentID); err != nil {
		h.t.Fatalf("link: %v", err)
	}
}

func (h *harness) addReport(userID int64, createdAt time.Time) *report.Report {
	rep := &report.Report{UserID: userID, Stage: report.Stages[0].Value, Plans: "read the book", Problems: "", CreatedAt: createdAt}
	if err := h.reports.Save(context.Background(), rep); err != nil {
		h.t.Fatalf("add report: %v", err)
	}
	return rep
}
