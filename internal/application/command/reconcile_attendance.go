package command

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/logger"
	"github.com/alem-hub/attendance-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE ATTENDANCE COMMAND
// Merges per-course attendance logs into rollups keyed by (course, student, term).
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileAttendanceCommand contains the data needed to reconcile attendance.
type ReconcileAttendanceCommand struct {
	Token string

	// StudentID skips token verification when the caller already did it.
	StudentID string
}

// Validate validates the command.
func (c ReconcileAttendanceCommand) Validate() error {
	if c.Token == "" {
		return shared.NewDomainError("attendance", "Reconcile", shared.ErrEmptyValue, "token is required")
	}
	return nil
}

// ReconcileAttendanceResult contains the outcome of reconciliation.
type ReconcileAttendanceResult struct {
	StudentID      string
	CoursesSeen    int
	CoursesFailed  int
	RollupsWritten int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileAttendanceHandler handles the ReconcileAttendanceCommand.
type ReconcileAttendanceHandler struct {
	rollups     attendance.Repository
	events      schedule.Repository
	client      ScheduleClient
	clock       shared.Clock
	log         *logger.Logger
	recorder    Recorder
	retrier     *retry.Retrier
	concurrency int
}

// NewReconcileAttendanceHandler creates a new ReconcileAttendanceHandler.
func NewReconcileAttendanceHandler(
	rollups attendance.Repository,
	events schedule.Repository,
	client ScheduleClient,
	clock shared.Clock,
	log *logger.Logger,
	recorder Recorder,
	concurrency int,
) *ReconcileAttendanceHandler {
	if concurrency <= 0 {
		concurrency = DefaultSyncScheduleConfig().Concurrency
	}
	if log == nil {
		log = logger.Nop()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}

	return &ReconcileAttendanceHandler{
		rollups:     rollups,
		events:      events,
		client:      client,
		clock:       clock,
		log:         log.With(logger.Component("reconcile_attendance")),
		recorder:    recorder,
		retrier:     retry.VersionConflictRetrier(isVersionConflict),
		concurrency: concurrency,
	}
}

// Handle executes the reconciliation. A failed course list yields zero rollups
// without an error; a failed course detail skips that course.
func (h *ReconcileAttendanceHandler) Handle(ctx context.Context, cmd ReconcileAttendanceCommand) (*ReconcileAttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("reconcile_attendance: validation failed: %w", err)
	}

	studentID := cmd.StudentID
	if studentID == "" {
		id, err := h.client.VerifyToken(ctx, cmd.Token)
		if err != nil {
			return nil, fmt.Errorf("reconcile_attendance: verify token: %w", err)
		}
		studentID = id
	}

	log := h.log.With(logger.StudentID(studentID))
	result := &ReconcileAttendanceResult{StudentID: studentID}

	courses, err := h.client.FetchAttendanceList(ctx, cmd.Token)
	if err != nil {
		h.recorder.FetchFailed(OpFetchCourseList)
		log.Warn("attendance list unavailable", logger.Err(err))
		return result, nil
	}
	result.CoursesSeen = len(courses)

	now := h.clock.Now()
	var (
		written, failed atomic.Int64
		g               errgroup.Group
	)
	g.SetLimit(h.concurrency)

	for _, course := range courses {
		g.Go(func() error {
			ok, err := h.reconcileCourse(ctx, log, cmd.Token, studentID, course, now)
			if ok {
				written.Add(1)
			} else if err == nil {
				failed.Add(1)
			}
			return err
		})
	}
	storeErr := g.Wait()

	result.RollupsWritten = int(written.Load())
	result.CoursesFailed = int(failed.Load())
	h.recorder.RollupsWritten(result.RollupsWritten)

	if storeErr != nil {
		log.Error("attendance reconcile aborted", logger.Err(storeErr))
		return result, fmt.Errorf("reconcile_attendance: %w", storeErr)
	}

	log.Info("attendance reconciled",
		logger.Int("courses", result.CoursesSeen),
		logger.Int("rollups_written", result.RollupsWritten),
		logger.Int("courses_failed", result.CoursesFailed),
	)
	return result, nil
}

// reconcileCourse returns (false, nil) when the course detail could not be fetched.
func (h *ReconcileAttendanceHandler) reconcileCourse(
	ctx context.Context,
	log *logger.Logger,
	token, studentID string,
	course attendance.CourseRef,
	now time.Time,
) (bool, error) {
	log = log.With(logger.CourseCode(course.Code))

	term, found, err := h.events.LatestTermForCourse(ctx, studentID, course.Code)
	if err != nil {
		return false, fmt.Errorf("resolve term for %s: %w", course.Code, err)
	}
	if !found {
		term = schedule.TermForMonth(now.Month())
	}

	detail, err := h.client.FetchAttendanceDetail(ctx, token, course.Code)
	if err != nil {
		h.recorder.FetchFailed(OpFetchCourse)
		log.Warn("attendance detail unavailable, skipping course", logger.Err(err))
		return false, nil
	}

	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		rollup, err := loadOrNewRollup(ctx, h.rollups, studentID, course.Code, course.Name, term, now)
		if err != nil {
			return err
		}
		rollup.ApplyUpstream(course.Name, *detail, now)
		return h.rollups.Save(ctx, rollup)
	})
	if err != nil {
		return false, fmt.Errorf("save rollup %s: %w", course.Code, err)
	}
	return true, nil
}

func loadOrNewRollup(
	ctx context.Context,
	repo attendance.Repository,
	studentID, code, name string,
	term schedule.Term,
	now time.Time,
) (*attendance.Rollup, error) {
	rollup, err := repo.Get(ctx, studentID, code, term)
	if errors.Is(err, shared.ErrNotFound) {
		return attendance.NewRollup(studentID, code, name, term, now), nil
	}
	if err != nil {
		return nil, err
	}
	return rollup, nil
}

func isVersionConflict(err error) bool {
	return errors.Is(err, shared.ErrOptimisticLock)
}
