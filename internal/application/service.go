// Package application exposes the attendance operations as one facade.
// Every write operation reports its outcome as a result value; only reads
// return plain errors.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/attendance-hub/internal/application/command"
	"github.com/alem-hub/attendance-hub/internal/application/query"
	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/internal/domain/stats"
	"github.com/alem-hub/attendance-hub/internal/domain/student"
	"github.com/alem-hub/attendance-hub/pkg/logger"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Sealer encrypts stored school API tokens.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// RunRecorder counts finished sync runs by outcome.
type RunRecorder interface {
	SyncRun(result string)
}

const (
	RunSuccess = "success"
	RunFailure = "failure"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// SyncResult is returned by Sync and AutoSync. On failure the counts are
// whatever was written before the abort.
type SyncResult struct {
	Success                 bool   `json:"success"`
	StudentID               string `json:"studentId,omitempty"`
	InsertedEventCount      int    `json:"insertedEventCount"`
	InsertedAttendanceCount int    `json:"insertedAttendanceCount"`
	Error                   string `json:"error,omitempty"`
}

// DedupeResult is returned by Dedupe.
type DedupeResult struct {
	Success        bool   `json:"success"`
	EventsDeleted  int    `json:"eventsDeleted"`
	RollupsDeleted int    `json:"rollupsDeleted"`
	Error          string `json:"error,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Deps wires the service. Cache, Sealer, Runs and Recorder are optional.
type Deps struct {
	Events   schedule.Repository
	Rollups  attendance.Repository
	Students student.Repository
	Client   command.ScheduleClient
	Encoder  query.CalendarEncoder

	Clock    shared.Clock
	Logger   *logger.Logger
	Recorder command.Recorder
	Runs     RunRecorder
	Cache    query.StatsCache
	Sealer   Sealer

	Concurrency int
	Location    *time.Location
}

// Service is the entry point used by the HTTP server and the worker.
type Service struct {
	syncSchedule *command.SyncScheduleHandler
	reconcile    *command.ReconcileAttendanceHandler
	dedupe       *command.DedupeHandler
	manual       *command.SetManualAttendanceHandler
	edit         *command.EditEventHandler

	hybridStats *query.GetHybridStatsHandler
	listEvents  *query.ListEventsForTermHandler
	export      *query.ExportCalendarHandler

	students student.Repository
	sealer   Sealer
	cache    query.StatsCache
	runs     RunRecorder
	clock    shared.Clock
	log      *logger.Logger
}

// NewService creates the facade and its handlers.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Location == nil {
		d.Location = timeutil.DefaultZone
	}
	if d.Clock == nil {
		d.Clock = shared.SystemClock{Location: d.Location}
	}
	if d.Recorder == nil {
		d.Recorder = command.NopRecorder{}
	}

	list := query.NewListEventsForTermHandler(d.Events)
	s := &Service{
		syncSchedule: command.NewSyncScheduleHandler(d.Events, d.Client, d.Clock, d.Logger, d.Recorder,
			command.SyncScheduleConfig{Concurrency: d.Concurrency, Location: d.Location}),
		reconcile: command.NewReconcileAttendanceHandler(d.Rollups, d.Events, d.Client, d.Clock, d.Logger,
			d.Recorder, d.Concurrency),
		dedupe: command.NewDedupeHandler(d.Events, d.Rollups, d.Logger, d.Recorder),
		manual: command.NewSetManualAttendanceHandler(d.Events, d.Rollups, d.Clock, d.Location, d.Logger),
		edit:   command.NewEditEventHandler(d.Events, d.Clock),

		hybridStats: query.NewGetHybridStatsHandler(d.Rollups, d.Events, d.Clock, d.Cache, d.Logger),
		listEvents:  list,

		students: d.Students,
		sealer:   d.Sealer,
		cache:    d.Cache,
		runs:     d.Runs,
		clock:    d.Clock,
		log:      d.Logger.With(logger.Component("service")),
	}
	if d.Encoder != nil {
		s.export = query.NewExportCalendarHandler(list, d.Encoder)
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Sync
// ─────────────────────────────────────────────────────────────────────────────

// Sync imports the schedule for term and reconciles attendance. urlOrToken is
// a bare token or a link carrying one.
func (s *Service) Sync(ctx context.Context, urlOrToken string, term schedule.Term) SyncResult {
	token := ExtractToken(urlOrToken)
	if token == "" {
		return s.finish(SyncResult{Error: "token is required"})
	}
	return s.sync(ctx, token, term, true)
}

// AutoSync re-runs Sync for a stored student with the term of the current month.
func (s *Service) AutoSync(ctx context.Context, studentID string) SyncResult {
	term := schedule.TermForMonth(s.clock.Now().Month())

	token, err := s.storedToken(ctx, studentID)
	if err != nil {
		s.log.Warn("auto sync skipped", logger.StudentID(studentID), logger.Err(err))
		return s.finish(SyncResult{StudentID: studentID, Error: err.Error()})
	}
	return s.sync(ctx, token, term, false)
}

func (s *Service) sync(ctx context.Context, token string, term schedule.Term, storeToken bool) SyncResult {
	res, err := s.syncSchedule.Handle(ctx, command.SyncScheduleCommand{Token: token, Term: term})
	out := SyncResult{}
	if res != nil {
		out.StudentID = res.StudentID
		out.InsertedEventCount = res.InsertedCount
	}
	if err == nil {
		var rec *command.ReconcileAttendanceResult
		rec, err = s.reconcile.Handle(ctx, command.ReconcileAttendanceCommand{Token: token, StudentID: res.StudentID})
		if rec != nil {
			out.InsertedAttendanceCount = rec.RollupsWritten
		}
	}
	s.invalidate(ctx, out.StudentID)

	// A resolved student id means the token was verified.
	if out.StudentID != "" {
		if rerr := s.rememberStudent(ctx, out.StudentID, token, storeToken, err == nil); rerr != nil {
			s.log.Warn("student not stored", logger.StudentID(out.StudentID), logger.Err(rerr))
		}
	}

	if err != nil {
		out.Error = describe(err)
		return s.finish(out)
	}
	out.Success = true
	return s.finish(out)
}

func (s *Service) finish(out SyncResult) SyncResult {
	if s.runs != nil {
		if out.Success {
			s.runs.SyncRun(RunSuccess)
		} else {
			s.runs.SyncRun(RunFailure)
		}
	}
	return out
}

// rememberStudent upserts the student after a verified sync. LastSyncedAt
// only moves when the sync succeeded.
func (s *Service) rememberStudent(ctx context.Context, studentID, token string, storeToken, synced bool) error {
	if s.students == nil {
		return nil
	}
	now := s.clock.Now()
	st, err := student.NewStudent(studentID, now)
	if err != nil {
		return err
	}
	if storeToken && s.sealer != nil {
		sealed, err := s.sealer.Seal([]byte(token))
		if err != nil {
			return fmt.Errorf("seal token: %w", err)
		}
		st.AttachToken(sealed)
	}
	if synced {
		st.MarkSynced(now)
	}
	return s.students.Upsert(ctx, st)
}

func (s *Service) storedToken(ctx context.Context, studentID string) (string, error) {
	if s.sealer == nil {
		return "", shared.ErrTokenSealDisabled
	}
	if s.students == nil {
		return "", shared.ErrStudentNotFound
	}
	st, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return "", err
	}
	if !st.HasToken() {
		return "", shared.ErrNoStoredToken
	}
	plain, err := s.sealer.Open(st.SealedToken)
	if err != nil {
		return "", fmt.Errorf("open stored token: %w", err)
	}
	return string(plain), nil
}

// StudentsForAutoSync lists students that have a stored token.
func (s *Service) StudentsForAutoSync(ctx context.Context) ([]string, error) {
	if s.students == nil || s.sealer == nil {
		return nil, nil
	}
	list, err := s.students.ListWithTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	ids := make([]string, 0, len(list))
	for _, st := range list {
		ids = append(ids, st.ID)
	}
	return ids, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Maintenance and edits
// ─────────────────────────────────────────────────────────────────────────────

// Dedupe removes duplicate events and rollups of one student.
func (s *Service) Dedupe(ctx context.Context, studentID string) DedupeResult {
	res, err := s.dedupe.Handle(ctx, command.DedupeCommand{StudentID: studentID})
	out := DedupeResult{}
	if res != nil {
		out.EventsDeleted = res.EventsDeleted
		out.RollupsDeleted = res.RollupsDeleted
	}
	if out.EventsDeleted+out.RollupsDeleted > 0 {
		s.invalidate(ctx, studentID)
	}
	if err != nil {
		out.Error = describe(err)
		return out
	}
	out.Success = true
	return out
}

// ToggleManualAttendance sets an event to UPCOMING or ABSENT. studentID may be
// empty for trusted callers.
func (s *Service) ToggleManualAttendance(ctx context.Context, studentID string, eventID int64, status schedule.Status) (*command.SetManualAttendanceResult, error) {
	res, err := s.manual.Handle(ctx, command.SetManualAttendanceCommand{
		EventID:   eventID,
		Status:    status,
		StudentID: studentID,
	})
	if res != nil && res.Event != nil {
		s.invalidate(ctx, res.Event.StudentID)
	}
	return res, err
}

// CancelEvent marks an event CANCELED.
func (s *Service) CancelEvent(ctx context.Context, studentID string, eventID int64) (*schedule.ScheduledEvent, error) {
	ev, err := s.edit.Cancel(ctx, command.CancelEventCommand{StudentID: studentID, EventID: eventID})
	if err == nil {
		s.invalidate(ctx, studentID)
	}
	return ev, err
}

// RescheduleEvent moves an event to new instants.
func (s *Service) RescheduleEvent(ctx context.Context, studentID string, eventID int64, start, end time.Time) (*schedule.ScheduledEvent, error) {
	ev, err := s.edit.Reschedule(ctx, command.RescheduleEventCommand{
		StudentID: studentID,
		EventID:   eventID,
		Start:     start,
		End:       end,
	})
	if err == nil {
		s.invalidate(ctx, studentID)
	}
	return ev, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetHybridStats returns per-course statistics sorted by course code.
func (s *Service) GetHybridStats(ctx context.Context, studentID string) ([]stats.HybridAttendanceStats, error) {
	return s.hybridStats.Handle(ctx, query.GetHybridStatsQuery{StudentID: studentID})
}

// ListEventsForTerm returns the term's non-canceled events ordered by start.
func (s *Service) ListEventsForTerm(ctx context.Context, studentID string, term schedule.Term) ([]*schedule.ScheduledEvent, error) {
	return s.listEvents.Handle(ctx, query.ListEventsForTermQuery{StudentID: studentID, Term: term})
}

// ExportCalendar encodes ListEventsForTerm as a calendar file.
func (s *Service) ExportCalendar(ctx context.Context, studentID string, term schedule.Term) (*query.CalendarFile, error) {
	if s.export == nil {
		return nil, shared.NewDomainError("export", "ExportCalendar", shared.ErrServiceUnavailable, "no calendar encoder configured")
	}
	return s.export.Handle(ctx, query.ExportCalendarQuery{StudentID: studentID, Term: term})
}

func (s *Service) invalidate(ctx context.Context, studentID string) {
	if s.cache == nil || studentID == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, studentID); err != nil {
		s.log.Warn("stats cache invalidation failed", logger.StudentID(studentID), logger.Err(err))
	}
}

// describe turns an error into the human-readable text of a result envelope.
func describe(err error) string {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		return "school API rejected the token"
	case shared.IsExternalService(err):
		return "school API unavailable: " + err.Error()
	default:
		return err.Error()
	}
}
