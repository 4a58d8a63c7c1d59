package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"weekly_report_bot/internal/domain/conversation"
	"weekly_report_bot/internal/domain/user"
)

const (
	msgGenericError = "⚠️ Произошла ошибка. Попробуй еще раз позже."
	msgFinishFirst  = "⚠️ Сначала заверши текущее действие или отмени его командой /cancel."
	msgNoAdmin      = "❌ У тебя нет прав администратора!"
	msgNoCurator    = "❌ *Доступ запрещен!*\n\n" +
		"У тебя нет прав для использования режима куратора.\n" +
		"Обратись к администратору для получения доступа."
)

type commandHandler func(ctx context.Context, u Update, r Responder, args []string) error

type stepHandler func(ctx context.Context, u Update, r Responder, st conversation.State) error

type callbackHandler func(ctx context.Context, u Update, r Responder, st conversation.State, payload string) error

type callbackRoute struct {
	prefix  string
	handler callbackHandler
}

type role int

const (
	roleStudent role = iota
	roleCurator
	roleAdmin
)

// Dispatcher routes every incoming update to the handler responsible for it.
// Updates of one user are processed strictly one at a time.
type Dispatcher struct {
	students *StudentService
	curators *CuratorService
	admins   *AdminService
	dialogue *ReportDialogue
	users    user.Repository
	states   conversation.Store
	logger   *logrus.Entry
	now      func() time.Time

	commands  map[string]commandHandler
	buttons   map[string]string
	steps     map[conversation.Step]stepHandler
	callbacks []callbackRoute

	mu    sync.Mutex
	locks map[int64]*userLock
}

func NewDispatcher(
	students *StudentService,
	curators *CuratorService,
	admins *AdminService,
	dialogue *ReportDialogue,
	ur user.Repository,
	states conversation.Store,
	logger *logrus.Entry,
	now func() time.Time,
) *Dispatcher {
	d := &Dispatcher{
		students: students,
		curators: curators,
		admins:   admins,
		dialogue: dialogue,
		users:    ur,
		states:   states,
		logger:   logger.WithField("component", "dispatcher"),
		now:      now,
		locks:    make(map[int64]*userLock),
	}

	d.commands = map[string]commandHandler{
		"/start":      d.handleStart,
		"/help":       d.handleHelp,
		"/cancel":     d.handleIdleCancel,
		"/report":     d.handleReport,
		"/my_reports": d.handleMyReports,

		"/curator":      d.handleCurator,
		"/add_student":  d.handleAddStudent,
		"/my_students":  d.handleMyStudents,
		"/all_students": d.handleAllStudents,
		"/reports":      d.handleReports,

		"/admin":                     d.adminOnly(d.handleAdmin),
		"/all_curators":              d.adminOnly(d.handleAllCurators),
		"/all_students_admin":        d.adminOnly(d.handleAllStudentsAdmin),
		"/notify_curators":           d.adminOnly(d.handleNotifyCurators),
		"/add_curator":               d.adminOnly(d.curatorIDPrompt(conversation.CuratorActionAdd)),
		"/deactivate_curator":        d.adminOnly(d.curatorIDPrompt(conversation.CuratorActionDeactivate)),
		"/activate_curator":          d.adminOnly(d.curatorIDPrompt(conversation.CuratorActionActivate)),
		"/assign_student":            d.adminOnly(d.handleAssignStudent),
		"/remove_relation":           d.adminOnly(d.handleRemoveRelation),
		"/students_without_curators": d.adminOnly(d.handleStudentsWithoutCurators),
		"/admin_stats":               d.adminOnly(d.handleAdminStats),
	}

	d.buttons = map[string]string{
		BtnSendReport: "/report",
		BtnMyReports:  "/my_reports",
		BtnHelp:       "/help",
		BtnCancel:     "/cancel",
		BtnBack:       "/cancel",

		BtnAddStudent:  "/add_student",
		BtnMyStudents:  "/my_students",
		BtnAllStudents: "/all_students",
		BtnReports:     "/reports",

		BtnAllCurators:        "/all_curators",
		BtnAllStudentsAdmin:   "/all_students_admin",
		BtnAdminStats:         "/admin_stats",
		BtnAddCurator:         "/add_curator",
		BtnAssignStudent:      "/assign_student",
		BtnRemoveRelation:     "/remove_relation",
		BtnDeactivateCurator:  "/deactivate_curator",
		BtnActivateCurator:    "/activate_curator",
		BtnStudentsNoCurators: "/students_without_curators",
		BtnAdminHelp:          "/help",
	}

	d.steps = map[conversation.Step]stepHandler{
		conversation.StepAwaitingStageSelection:  d.dialogue.HandleText,
		conversation.StepAwaitingPlansCompletion: d.dialogue.HandleText,
		conversation.StepAwaitingFailureReason:   d.dialogue.HandleText,
		conversation.StepAwaitingPlans:           d.dialogue.HandleText,
		conversation.StepAwaitingProblems:        d.dialogue.HandleText,

		conversation.StepAwaitingStudentID: d.processStudentID,

		conversation.StepAwaitingCuratorID:         d.processCuratorID,
		conversation.StepAwaitingStudentChoice:     d.processStudentChoice,
		conversation.StepAwaitingCuratorChoice:     d.processCuratorChoice,
		conversation.StepAwaitingRelationStudentID: d.processRemoveRelation,
	}

	d.callbacks = []callbackRoute{
		{prefix: cbStage, handler: d.onStage},
		{prefix: cbPlans, handler: d.onPlansCompletion},
		{prefix: cbRead, handler: d.onRead},
	}

	return d
}

// Dispatch handles one update. Failures are logged and reported to the user;
// they never reach the transport.
func (d *Dispatcher) Dispatch(ctx context.Context, u Update, r Responder) {
	unlock := d.lock(u.UserID)
	defer unlock()

	logCtx := d.logger.WithField("user_id", u.UserID)
	err := d.route(ctx, u, r, logCtx)
	if err == nil {
		return
	}

	text := msgGenericError
	switch {
	case errors.Is(err, ErrAdminNotAuthorized):
		text = msgNoAdmin
	case errors.Is(err, ErrNotCurator):
		text = msgNoCurator
	default:
		logCtx.WithError(err).Error("Failed to handle update")
	}

	if u.IsCallback() {
		err = r.Answer(strings.ReplaceAll(text, "*", ""))
	} else {
		err = r.Send(text, markdown(nil))
	}
	if err != nil {
		logCtx.WithError(err).Warn("Failed to report handler failure to user")
	}
}

// userLock serializes one user's updates. It is dropped once nobody holds or waits for it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

func (d *Dispatcher) lock(userID int64) func() {
	d.mu.Lock()
	l, ok := d.locks[userID]
	if !ok {
		l = &userLock{}
		d.locks[userID] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, userID)
		}
		d.mu.Unlock()
	}
}

func (d *Dispatcher) route(ctx context.Context, u Update, r Responder, logCtx *logrus.Entry) error {
	st, err := d.states.Get(ctx, u.UserID)
	if err != nil {
		return fmt.Errorf("failed to load conversation state: %w", err)
	}

	if u.IsCallback() {
		for _, route := range d.callbacks {
			if payload, ok := strings.CutPrefix(u.Callback, route.prefix); ok {
				logCtx.WithField("callback", u.Callback).Debug("Handling button press")
				return route.handler(ctx, u, r, st, payload)
			}
		}
		return r.Answer(msgStaleButton)
	}

	text := strings.TrimSpace(u.Text)
	cmd, args, isCommand := d.command(text)

	if st != nil {
		step := st.Step()
		if isCommand && cmd == "/cancel" {
			return d.cancel(ctx, u, r, step)
		}
		if isCommand && !freeTextSteps[step] {
			return r.Send(msgFinishFirst, nil)
		}
		if h, ok := d.steps[step]; ok {
			logCtx.WithField("step", step).Debug("Handling dialogue answer")
			return h(ctx, u, r, st)
		}
		logCtx.WithField("step", step).Warn("No handler for stored dialogue step, resetting")
		if err := d.states.Clear(ctx, u.UserID); err != nil {
			return err
		}
	}

	if isCommand {
		if h, ok := d.commands[cmd]; ok {
			logCtx.WithField("command", cmd).Debug("Handling command")
			return h(ctx, u, r, args)
		}
	}
	return d.handleHelp(ctx, u, r, nil)
}

// freeTextSteps take any answer except cancel, including text that looks like a command.
var freeTextSteps = map[conversation.Step]bool{
	conversation.StepAwaitingFailureReason: true,
	conversation.StepAwaitingPlans:         true,
	conversation.StepAwaitingProblems:      true,
}

// command recognises slash commands and reply keyboard labels.
func (d *Dispatcher) command(text string) (string, []string, bool) {
	if cmd, ok := d.buttons[text]; ok {
		return cmd, nil, true
	}
	return parseCommand(text)
}

func (d *Dispatcher) cancel(ctx context.Context, u Update, r Responder, step conversation.Step) error {
	if err := d.states.Clear(ctx, u.UserID); err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(string(step), "report."):
		return r.Send("❌ Заполнение отчета отменено.", markdown(studentKeyboard()))
	case strings.HasPrefix(string(step), "curator."):
		return r.Send("↩️ Возвращаю режим куратора.", markdown(curatorKeyboard()))
	default:
		return r.Send("❌ Действие отменено.", markdown(adminKeyboard()))
	}
}

func (d *Dispatcher) handleIdleCancel(ctx context.Context, u Update, r Responder, _ []string) error {
	rl, err := d.roleOf(ctx, u.UserID)
	if err != nil {
		return err
	}
	_, keyboard := helpFor(rl)
	return r.Send("Нечего отменять.", markdown(keyboard))
}

func (d *Dispatcher) adminOnly(h commandHandler) commandHandler {
	return func(ctx context.Context, u Update, r Responder, args []string) error {
		if !d.admins.IsAdmin(u.UserID) {
			return ErrAdminNotAuthorized
		}
		return h(ctx, u, r, args)
	}
}

func (d *Dispatcher) roleOf(ctx context.Context, userID int64) (role, error) {
	if d.admins.IsAdmin(userID) {
		return roleAdmin, nil
	}
	u, err := d.users.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return roleStudent, nil
		}
		return roleStudent, fmt.Errorf("failed to resolve role: %w", err)
	}
	if u.Role == user.RoleCurator && u.IsActive {
		return roleCurator, nil
	}
	return roleStudent, nil
}
