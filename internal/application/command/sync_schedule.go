package command

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
	"github.com/alem-hub/attendance-hub/internal/domain/shared"
	"github.com/alem-hub/attendance-hub/pkg/logger"
	"github.com/alem-hub/attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC SCHEDULE COMMAND
// Pulls a term's monthly schedules (plus the backfill term) and inserts the
// events that are not yet stored.
// ══════════════════════════════════════════════════════════════════════════════

// SyncScheduleCommand contains the data needed to sync a student's calendar.
type SyncScheduleCommand struct {
	// Token is the student's school API token.
	Token string

	Term schedule.Term
}

// Validate validates the command.
func (c SyncScheduleCommand) Validate() error {
	if c.Token == "" {
		return shared.NewDomainError("schedule", "Sync", shared.ErrEmptyValue, "token is required")
	}
	if !c.Term.IsValid() {
		return shared.ErrInvalidTerm
	}
	return nil
}

// SyncScheduleResult contains the outcome of a sync. Counts are partial when
// Handle also returns an error.
type SyncScheduleResult struct {
	StudentID string

	InsertedCount int
	RejectedCount int
	MonthsFetched int
	MonthsFailed  int

	SyncedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SyncScheduleConfig contains configuration for the handler.
type SyncScheduleConfig struct {
	// Concurrency bounds parallel month fetches.
	Concurrency int

	// Location is used for upstream timestamps without an offset.
	Location *time.Location
}

// DefaultSyncScheduleConfig returns default configuration.
func DefaultSyncScheduleConfig() SyncScheduleConfig {
	return SyncScheduleConfig{Concurrency: 4, Location: timeutil.DefaultZone}
}

// SyncScheduleHandler handles the SyncScheduleCommand.
type SyncScheduleHandler struct {
	events   schedule.Repository
	client   ScheduleClient
	clock    shared.Clock
	log      *logger.Logger
	recorder Recorder
	validate *validator.Validate
	config   SyncScheduleConfig
}

// NewSyncScheduleHandler creates a new SyncScheduleHandler.
func NewSyncScheduleHandler(
	events schedule.Repository,
	client ScheduleClient,
	clock shared.Clock,
	log *logger.Logger,
	recorder Recorder,
	config SyncScheduleConfig,
) *SyncScheduleHandler {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultSyncScheduleConfig().Concurrency
	}
	if config.Location == nil {
		config.Location = timeutil.DefaultZone
	}
	if log == nil {
		log = logger.Nop()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}

	return &SyncScheduleHandler{
		events:   events,
		client:   client,
		clock:    clock,
		log:      log.With(logger.Component("sync_schedule")),
		recorder: recorder,
		validate: validator.New(),
		config:   config,
	}
}

// Handle executes the sync. A rejected token fails before any fetch; a failed
// month is skipped; a store error is returned together with partial counts.
func (h *SyncScheduleHandler) Handle(ctx context.Context, cmd SyncScheduleCommand) (*SyncScheduleResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("sync_schedule: validation failed: %w", err)
	}

	studentID, err := h.client.VerifyToken(ctx, cmd.Token)
	if err != nil {
		return nil, fmt.Errorf("sync_schedule: verify token: %w", err)
	}

	now := h.clock.Now()
	plan := schedule.FetchPlan(cmd.Term, now)
	log := h.log.With(logger.StudentID(studentID), logger.Term(int(cmd.Term)))

	var (
		inserted, rejected atomic.Int64
		fetched, failed    atomic.Int64
		g                  errgroup.Group
	)
	g.SetLimit(h.config.Concurrency)

	for _, ref := range plan {
		g.Go(func() error {
			out, err := h.syncMonth(ctx, log, cmd.Token, studentID, ref, now)
			inserted.Add(int64(out.inserted))
			rejected.Add(int64(out.rejected))
			if out.fetchFailed {
				failed.Add(1)
			} else {
				fetched.Add(1)
			}
			return err
		})
	}
	storeErr := g.Wait()

	result := &SyncScheduleResult{
		StudentID:     studentID,
		InsertedCount: int(inserted.Load()),
		RejectedCount: int(rejected.Load()),
		MonthsFetched: int(fetched.Load()),
		MonthsFailed:  int(failed.Load()),
		SyncedAt:      now,
	}

	h.recorder.EventsInserted(result.InsertedCount)
	h.recorder.EventsRejected(result.RejectedCount)

	if storeErr != nil {
		log.Error("schedule sync aborted", logger.Err(storeErr), logger.Int("inserted", result.InsertedCount))
		return result, fmt.Errorf("sync_schedule: %w", storeErr)
	}

	log.Info("schedule synced",
		logger.Int("inserted", result.InsertedCount),
		logger.Int("rejected", result.RejectedCount),
		logger.Int("months_failed", result.MonthsFailed),
	)
	return result, nil
}

type monthOutcome struct {
	inserted    int
	rejected    int
	fetchFailed bool
}

func (h *SyncScheduleHandler) syncMonth(
	ctx context.Context,
	log *logger.Logger,
	token, studentID string,
	ref schedule.MonthRef,
	now time.Time,
) (monthOutcome, error) {
	var out monthOutcome
	log = log.With(logger.Month(ref.Year, int(ref.Month)))

	raws, err := h.client.FetchMonthSchedule(ctx, token, ref.Month, ref.Year)
	if err != nil {
		out.fetchFailed = true
		h.recorder.FetchFailed(OpFetchMonth)
		log.Warn("month fetch failed, skipping", logger.Err(err))
		return out, nil
	}

	fresh := make(map[string]schedule.ParsedEvent, len(raws))
	keys := make([]string, 0, len(raws))
	for _, raw := range raws {
		parsed, err := h.ingest(raw)
		if err != nil {
			out.rejected++
			log.Warn("schedule event rejected", logger.Err(err))
			continue
		}
		if _, dup := fresh[parsed.NaturalKey]; dup {
			continue
		}
		fresh[parsed.NaturalKey] = parsed
		keys = append(keys, parsed.NaturalKey)
	}
	if len(keys) == 0 {
		return out, nil
	}

	existing, err := h.events.ExistingKeys(ctx, studentID, keys)
	if err != nil {
		return out, fmt.Errorf("lookup existing keys for %04d-%02d: %w", ref.Year, ref.Month, err)
	}

	toInsert := make([]*schedule.ScheduledEvent, 0, len(keys))
	for _, key := range keys {
		if _, ok := existing[key]; ok {
			continue
		}
		toInsert = append(toInsert, fresh[key].ToEvent(studentID, ref.Term, now))
	}
	if len(toInsert) == 0 {
		return out, nil
	}

	n, err := h.events.InsertMany(ctx, toInsert)
	out.inserted = n
	if err != nil {
		return out, fmt.Errorf("insert events for %04d-%02d: %w", ref.Year, ref.Month, err)
	}
	log.Debug("month stored", logger.Int("inserted", n), logger.Int("skipped_existing", len(keys)-len(toInsert)))
	return out, nil
}

// ingest validates the optional-field payload and parses it.
func (h *SyncScheduleHandler) ingest(raw schedule.RawEvent) (schedule.ParsedEvent, error) {
	if err := h.validate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return schedule.ParsedEvent{}, shared.WrapError("schedule", "Ingest", shared.ErrValidation,
				"invalid field "+verrs[0].Field(), err)
		}
		return schedule.ParsedEvent{}, shared.WrapError("schedule", "Ingest", shared.ErrValidation, "invalid event", err)
	}
	return raw.Parse(h.config.Location)
}
