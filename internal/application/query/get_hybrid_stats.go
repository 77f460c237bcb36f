// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/internal/domain/stats"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HYBRID STATS QUERY
// Гибридная статистика по всем сводкам студента: счётчики из сводок,
// минуты из календаря.
// ══════════════════════════════════════════════════════════════════════════════

// GetHybridStatsQuery содержит параметры запроса статистики.
type GetHybridStatsQuery struct {
	StudentID string

	// SkipCache - посчитать заново, не читая кеш.
	SkipCache bool
}

// Validate проверяет корректность параметров запроса.
func (q GetHybridStatsQuery) Validate() error {
	if q.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	return nil
}

// StatsCache - кеш готовой статистики. Промах возвращает (nil, false, nil).
// Set хранит значение не дольше maxAge; maxAge <= 0 означает TTL кеша.
type StatsCache interface {
	Get(ctx context.Context, studentID string) ([]stats.HybridAttendanceStats, bool, error)
	Set(ctx context.Context, studentID string, value []stats.HybridAttendanceStats, maxAge time.Duration) error
	Invalidate(ctx context.Context, studentID string) error
}

// GetHybridStatsHandler обрабатывает GetHybridStatsQuery.
type GetHybridStatsHandler struct {
	rollups attendance.Repository
	events  schedule.Repository
	clock   shared.Clock
	cache   StatsCache
	log     *logger.Logger
}

// NewGetHybridStatsHandler создаёт обработчик. cache может быть nil.
func NewGetHybridStatsHandler(
	rollups attendance.Repository,
	events schedule.Repository,
	clock shared.Clock,
	cache StatsCache,
	log *logger.Logger,
) *GetHybridStatsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetHybridStatsHandler{
		rollups: rollups,
		events:  events,
		clock:   clock,
		cache:   cache,
		log:     log.With(logger.Component("hybrid_stats")),
	}
}

// Handle выполняет запрос. Ошибки кеша не прерывают расчёт.
func (h *GetHybridStatsHandler) Handle(ctx context.Context, q GetHybridStatsQuery) ([]stats.HybridAttendanceStats, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_hybrid_stats: validation failed: %w", err)
	}

	if h.cache != nil && !q.SkipCache {
		cached, ok, err := h.cache.Get(ctx, q.StudentID)
		if err != nil {
			h.log.Warn("stats cache read failed", logger.StudentID(q.StudentID), logger.Err(err))
		} else if ok {
			return cached, nil
		}
	}

	rollups, err := h.rollups.ListByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_hybrid_stats: list rollups: %w", err)
	}
	events, err := h.events.ListByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_hybrid_stats: list events: %w", err)
	}

	now := h.clock.Now()
	result := stats.Calculate(rollups, events, now)

	if h.cache != nil {
		if err := h.cache.Set(ctx, q.StudentID, result, UntilNextClassEnd(events, now)); err != nil {
			h.log.Warn("stats cache write failed", logger.StudentID(q.StudentID), logger.Err(err))
		}
	}
	return result, nil
}

// UntilNextClassEnd - время до окончания ближайшего незавершённого занятия.
// После этого момента занятие переходит в проведённые и статистика устаревает.
// Без таких занятий возвращает 0.
func UntilNextClassEnd(events []*schedule.ScheduledEvent, now time.Time) time.Duration {
	var next time.Time
	for _, e := range events {
		if e.IsCanceled() || !e.End.After(now) {
			continue
		}
		if next.IsZero() || e.End.Before(next) {
			next = e.End
		}
	}
	if next.IsZero() {
		return 0
	}
	return next.Sub(now)
}
