package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/attendance-hub/internal/application"
	"github.com/alem-hub/attendance-hub/internal/application/command"
	"github.com/alem-hub/attendance-hub/internal/application/query"
	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/internal/domain/stats"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

// AttendanceService is the application facade the API drives.
// *application.Service implements it.
type AttendanceService interface {
	Sync(ctx context.Context, urlOrToken string, term schedule.Term) application.SyncResult
	AutoSync(ctx context.Context, studentID string) application.SyncResult
	Dedupe(ctx context.Context, studentID string) application.DedupeResult
	ToggleManualAttendance(ctx context.Context, studentID string, eventID int64, status schedule.Status) (*command.SetManualAttendanceResult, error)
	CancelEvent(ctx context.Context, studentID string, eventID int64) (*schedule.ScheduledEvent, error)
	RescheduleEvent(ctx context.Context, studentID string, eventID int64, start, end time.Time) (*schedule.ScheduledEvent, error)
	GetHybridStats(ctx context.Context, studentID string) ([]stats.HybridAttendanceStats, error)
	ListEventsForTerm(ctx context.Context, studentID string, term schedule.Term) ([]*schedule.ScheduledEvent, error)
	ExportCalendar(ctx context.Context, studentID string, term schedule.Term) (*query.CalendarFile, error)
}

var registerOnce sync.Once

// registerValidators adds the "term" tag to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("term", func(fl validator.FieldLevel) bool {
			_, err := schedule.ParseTerm(fl.Field().String())
			return err == nil
		})
	})
}

func init() {
	registerValidators()
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS & RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

type syncRequest struct {
	// Token is a bare token or a link carrying one.
	Token string `json:"token" binding:"required"`
	Term  string `json:"term" binding:"required,term"`
}

type attendanceRequest struct {
	Status string `json:"status" binding:"required,oneof=UPCOMING ABSENT"`
}

type rescheduleRequest struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required,gtefield=Start"`
}

type rollupResponse struct {
	CourseCode     string  `json:"courseCode"`
	Term           int     `json:"term"`
	Status         string  `json:"status"`
	Conducted      int     `json:"conducted"`
	Attended       int     `json:"attended"`
	Late           int     `json:"late"`
	Absent         int     `json:"absent"`
	AttendanceRate float64 `json:"attendanceRate"`
}

type attendanceResponse struct {
	Event  query.EventDTO  `json:"event"`
	Rollup *rollupResponse `json:"rollup,omitempty"`
}

func toRollupResponse(r *attendance.Rollup) *rollupResponse {
	if r == nil {
		return nil
	}
	return &rollupResponse{
		CourseCode:     r.CourseCode,
		Term:           int(r.Term),
		Status:         string(r.Status),
		Conducted:      r.Conducted,
		Attended:       r.Attended,
		Late:           r.Late,
		Absent:         r.Absent,
		AttendanceRate: r.AttendanceRate,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SYSTEM HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot handles GET /
func (s *Server) handleRoot(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"name":    "attendance-hub",
		"version": s.config.Version,
		"uptime":  s.Uptime().Round(time.Second).String(),
	})
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSync handles POST /v1/sync
func (s *Server) handleSync(c *gin.Context) {
	var req syncRequest
	if !bindJSON(c, &req) {
		return
	}
	term, _ := schedule.ParseTerm(req.Term)

	result := s.deps.Service.Sync(c.Request.Context(), req.Token, term)
	writeSyncResult(c, result)
}

// handleAutoSync handles POST /v1/students/:id/auto-sync
func (s *Server) handleAutoSync(c *gin.Context) {
	result := s.deps.Service.AutoSync(c.Request.Context(), c.Param("id"))
	writeSyncResult(c, result)
}

func writeSyncResult(c *gin.Context, result application.SyncResult) {
	if !result.Success {
		writeJSONErrorDetails(c, http.StatusUnprocessableEntity, "sync_failed", result.Error, result)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

// handleDedupe handles POST /v1/students/:id/dedupe
func (s *Server) handleDedupe(c *gin.Context) {
	result := s.deps.Service.Dedupe(c.Request.Context(), c.Param("id"))
	if !result.Success {
		writeJSONErrorDetails(c, http.StatusInternalServerError, "dedupe_failed", result.Error, result)
		return
	}
	writeJSON(c, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// EDIT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSetAttendance handles PUT /v1/students/:id/events/:eventId/attendance
func (s *Server) handleSetAttendance(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	var req attendanceRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.Service.ToggleManualAttendance(c.Request.Context(), c.Param("id"), eventID, schedule.Status(req.Status))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, attendanceResponse{
		Event:  query.ToEventDTO(res.Event),
		Rollup: toRollupResponse(res.Rollup),
	})
}

// handleCancelEvent handles POST /v1/students/:id/events/:eventId/cancel
func (s *Server) handleCancelEvent(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	ev, err := s.deps.Service.CancelEvent(c.Request.Context(), c.Param("id"), eventID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.ToEventDTO(ev))
}

// handleRescheduleEvent handles POST /v1/students/:id/events/:eventId/reschedule
func (s *Server) handleRescheduleEvent(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	ev, err := s.deps.Service.RescheduleEvent(c.Request.Context(), c.Param("id"), eventID, req.Start, req.End)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.ToEventDTO(ev))
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStats handles GET /v1/students/:id/stats
func (s *Server) handleGetStats(c *gin.Context) {
	result, err := s.deps.Service.GetHybridStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSONList(c, result, len(result))
}

// handleListEvents handles GET /v1/students/:id/events?term=
func (s *Server) handleListEvents(c *gin.Context) {
	term, ok := termQuery(c)
	if !ok {
		return
	}
	events, err := s.deps.Service.ListEventsForTerm(c.Request.Context(), c.Param("id"), term)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]query.EventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, query.ToEventDTO(e))
	}
	writeJSONList(c, out, len(out))
}

// handleExportCalendar handles GET /v1/students/:id/calendar.ics?term=
func (s *Server) handleExportCalendar(c *gin.Context) {
	term, ok := termQuery(c)
	if !ok {
		return
	}
	file, err := s.deps.Service.ExportCalendar(c.Request.Context(), c.Param("id"), term)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Header("X-Event-Count", strconv.Itoa(file.EventCount))
	c.Data(http.StatusOK, file.ContentType, file.Body)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func termQuery(c *gin.Context) (schedule.Term, bool) {
	term, err := schedule.ParseTerm(c.Query("term"))
	if err != nil {
		writeJSONError(c, http.StatusBadRequest, "invalid_request", "term must be 1, 2, 3 or fall, spring, summer")
		return 0, false
	}
	return term, true
}

// bindJSON decodes and validates the body, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSONErrorDetails(c, http.StatusBadRequest, "validation_failed", "Request validation failed", fields)
		return false
	}
	writeJSONError(c, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
	return false
}

// writeDomainError maps error kinds to HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= 500 {
		logger.FromContext(c.Request.Context()).Error("request failed", logger.Err(err))
	}
	writeJSONError(c, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, shared.ErrOptimisticLock), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusUnprocessableEntity, "invalid_state"
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout, "upstream_timeout"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case shared.IsExternalService(err):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
