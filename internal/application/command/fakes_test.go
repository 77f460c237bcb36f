package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/attendance-hub/internal/domain/attendance"
	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

var testLoc = timeutil.DefaultZone

// ─────────────────────────────────────────────────────────────────────────────
// Schedule client
// ─────────────────────────────────────────────────────────────────────────────

type fakeClient struct {
	mu sync.Mutex

	tokens    map[string]string
	months    map[string][]schedule.RawEvent
	monthErrs map[string]error
	courses   []attendance.CourseRef
	listErr   error
	details   map[string]*attendance.CourseDetail
	detailErr map[string]error

	monthCalls []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		tokens:    map[string]string{"tok": "st-1"},
		months:    map[string][]schedule.RawEvent{},
		monthErrs: map[string]error{},
		details:   map[string]*attendance.CourseDetail{},
		detailErr: map[string]error{},
	}
}

func monthKey(year int, m time.Month) string { return fmt.Sprintf("%04d-%02d", year, int(m)) }

func (c *fakeClient) VerifyToken(_ context.Context, token string) (string, error) {
	if id, ok := c.tokens[token]; ok {
		return id, nil
	}
	return "", shared.ErrInvalidToken
}

func (c *fakeClient) FetchMonthSchedule(_ context.Context, _ string, month time.Month, year int) ([]schedule.RawEvent, error) {
	key := monthKey(year, month)
	c.mu.Lock()
	c.monthCalls = append(c.monthCalls, key)
	c.mu.Unlock()
	if err := c.monthErrs[key]; err != nil {
		return nil, err
	}
	return c.months[key], nil
}

func (c *fakeClient) FetchAttendanceList(context.Context, string) ([]attendance.CourseRef, error) {
	return c.courses, c.listErr
}

func (c *fakeClient) FetchAttendanceDetail(_ context.Context, _ string, code string) (*attendance.CourseDetail, error) {
	if err := c.detailErr[code]; err != nil {
		return nil, err
	}
	if d, ok := c.details[code]; ok {
		return d, nil
	}
	return &attendance.CourseDetail{}, nil
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

// raw builds an upstream event lasting the given minutes.
func raw(code string, week int, start time.Time, minutes int) schedule.RawEvent {
	end := start.Add(time.Duration(minutes) * time.Minute)
	return schedule.RawEvent{
		UpstreamID:  strp(fmt.Sprintf("u-%d", start.UnixNano())),
		CourseCode:  strp(code),
		CourseTitle: strp(code + " title"),
		WeekNumber:  intp(week),
		StartTime:   strp(start.Format("2006-01-02T15:04:05")),
		EndTime:     strp(end.Format("2006-01-02T15:04:05")),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Event repository
// ─────────────────────────────────────────────────────────────────────────────

type memEvents struct {
	mu        sync.Mutex
	nextID    int64
	rows      []*schedule.ScheduledEvent
	insertErr error
}

func newMemEvents() *memEvents { return &memEvents{} }

func cloneEvent(e *schedule.ScheduledEvent) *schedule.ScheduledEvent {
	c := *e
	return &c
}

func (m *memEvents) ExistingKeys(_ context.Context, studentID string, keys []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, k := range keys {
		want[k] = true
	}
	out := map[string]struct{}{}
	for _, r := range m.rows {
		if r.StudentID == studentID && want[r.NaturalKey] {
			out[r.NaturalKey] = struct{}{}
		}
	}
	return out, nil
}

func (m *memEvents) InsertMany(_ context.Context, events []*schedule.ScheduledEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	n := 0
	for _, e := range events {
		if m.findLocked(e.NaturalKey, e.StudentID, e.Term) != nil {
			continue
		}
		m.nextID++
		c := cloneEvent(e)
		c.ID = m.nextID
		m.rows = append(m.rows, c)
		n++
	}
	return n, nil
}

// add stores a row as-is, bypassing uniqueness, to seed duplicates.
func (m *memEvents) add(e *schedule.ScheduledEvent) *schedule.ScheduledEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := cloneEvent(e)
	c.ID = m.nextID
	m.rows = append(m.rows, c)
	return cloneEvent(c)
}

func (m *memEvents) findLocked(key, studentID string, term schedule.Term) *schedule.ScheduledEvent {
	for _, r := range m.rows {
		if r.NaturalKey == key && r.StudentID == studentID && r.Term == term {
			return r
		}
	}
	return nil
}

func (m *memEvents) GetByID(_ context.Context, id int64) (*schedule.ScheduledEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			return cloneEvent(r), nil
		}
	}
	return nil, shared.ErrEventNotFound
}

func (m *memEvents) Update(_ context.Context, e *schedule.ScheduledEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == e.ID {
			m.rows[i] = cloneEvent(e)
			return nil
		}
	}
	return shared.ErrEventNotFound
}

func (m *memEvents) ListByStudent(_ context.Context, studentID string) ([]*schedule.ScheduledEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schedule.ScheduledEvent
	for _, r := range m.rows {
		if r.StudentID == studentID {
			out = append(out, cloneEvent(r))
		}
	}
	return out, nil
}

func (m *memEvents) ListByStudentAndTerm(ctx context.Context, studentID string, term schedule.Term) ([]*schedule.ScheduledEvent, error) {
	all, _ := m.ListByStudent(ctx, studentID)
	var out []*schedule.ScheduledEvent
	for _, r := range all {
		if r.Term == term {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memEvents) LatestTermForCourse(_ context.Context, studentID, code string) (schedule.Term, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *schedule.ScheduledEvent
	for _, r := range m.rows {
		if r.StudentID != studentID || r.CourseCode != code {
			continue
		}
		if best == nil || r.UpdatedAt.After(best.UpdatedAt) ||
			(r.UpdatedAt.Equal(best.UpdatedAt) && r.Start.After(best.Start)) {
			best = r
		}
	}
	if best == nil {
		return 0, false, nil
	}
	return best.Term, true, nil
}

func (m *memEvents) DeleteDuplicates(_ context.Context, studentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := map[string][]*schedule.ScheduledEvent{}
	for _, r := range m.rows {
		if r.StudentID == studentID {
			k := fmt.Sprintf("%s|%d", r.NaturalKey, r.Term)
			groups[k] = append(groups[k], r)
		}
	}
	drop := map[int64]bool{}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool {
			if !g[i].UpdatedAt.Equal(g[j].UpdatedAt) {
				return g[i].UpdatedAt.After(g[j].UpdatedAt)
			}
			return g[i].ID > g[j].ID
		})
		for _, r := range g[1:] {
			drop[r.ID] = true
		}
	}
	kept := m.rows[:0]
	for _, r := range m.rows {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return len(drop), nil
}

func (m *memEvents) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Rollup repository
// ─────────────────────────────────────────────────────────────────────────────

type memRollups struct {
	mu     sync.Mutex
	nextID int
	rows   []*attendance.Rollup
	saves  int

	// conflicts forces the next N saves to fail the version check.
	conflicts int
	getErr    error
}

func newMemRollups() *memRollups { return &memRollups{} }

func cloneRollup(r *attendance.Rollup) *attendance.Rollup {
	c := *r
	c.Records = append([]attendance.ClassRecord(nil), r.Records...)
	return &c
}

func (m *memRollups) Get(_ context.Context, studentID, code string, term schedule.Term) (*attendance.Rollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, r := range m.rows {
		if r.StudentID == studentID && r.CourseCode == code && r.Term == term {
			return cloneRollup(r), nil
		}
	}
	return nil, shared.ErrRollupNotFound
}

func (m *memRollups) Save(_ context.Context, r *attendance.Rollup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.conflicts > 0 {
		m.conflicts--
		return shared.ErrRollupConflict
	}
	if r.Version == 0 {
		for _, row := range m.rows {
			if row.StudentID == r.StudentID && row.CourseCode == r.CourseCode && row.Term == r.Term {
				return shared.ErrRollupConflict
			}
		}
		m.nextID++
		r.ID = fmt.Sprintf("r-%d", m.nextID)
		r.Version = 1
		m.rows = append(m.rows, cloneRollup(r))
		return nil
	}
	for i, row := range m.rows {
		if row.ID == r.ID {
			if row.Version != r.Version {
				return shared.ErrRollupConflict
			}
			r.Version++
			m.rows[i] = cloneRollup(r)
			return nil
		}
	}
	return shared.ErrRollupNotFound
}

func (m *memRollups) ListByStudent(_ context.Context, studentID string) ([]*attendance.Rollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attendance.Rollup
	for _, r := range m.rows {
		if r.StudentID == studentID {
			out = append(out, cloneRollup(r))
		}
	}
	return out, nil
}

func (m *memRollups) DeleteDuplicates(context.Context, string) (int, error) {
	return 0, nil
}

func (m *memRollups) only() *attendance.Rollup {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) != 1 {
		panic(fmt.Sprintf("expected 1 rollup, have %d", len(m.rows)))
	}
	return cloneRollup(m.rows[0])
}

// ─────────────────────────────────────────────────────────────────────────────
// Recorder
// ─────────────────────────────────────────────────────────────────────────────

type countingRecorder struct {
	mu       sync.Mutex
	inserted int
	rejected int
	failures map[string]int
	rollups  int
	deleted  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{failures: map[string]int{}, deleted: map[string]int{}}
}

func (r *countingRecorder) EventsInserted(n int) { r.mu.Lock(); r.inserted += n; r.mu.Unlock() }
func (r *countingRecorder) EventsRejected(n int) { r.mu.Lock(); r.rejected += n; r.mu.Unlock() }
func (r *countingRecorder) FetchFailed(op string) {
	r.mu.Lock()
	r.failures[op]++
	r.mu.Unlock()
}
func (r *countingRecorder) RollupsWritten(n int) { r.mu.Lock(); r.rollups += n; r.mu.Unlock() }
func (r *countingRecorder) DuplicatesDeleted(c string, n int) {
	r.mu.Lock()
	r.deleted[c] += n
	r.mu.Unlock()
}

var errBoom = errors.New("boom")
