// Package availability computes what can be booked: the slot generator
// materializes each professional's daily slot set from their work schedule
// and unavailability sources, and the calculator consolidates bookable
// offers across every professional qualified for a set of services.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/revitek/scheduling-engine/internal/interval"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/events"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"gorm.io/gorm"
)

// EventPublisher is the slice of pkg/events the generator needs to
// announce slot-set changes to realtime watchers.
type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

// Generator derives the persisted Slot rows for (professional, date) from
// the professional's WorkSchedule minus breaks, schedule exceptions and
// manual blocks. Generation is idempotent: re-running with no external
// change yields the same AVAILABLE slot starts.
type Generator struct {
	db         *gorm.DB
	profRepo   *repository.ProfessionalRepository
	schedRepo  *repository.ScheduleRepository
	slotRepo   *repository.SlotRepository
	publisher  EventPublisher
	logger     *logger.Logger
	slotLength time.Duration
	loc        *time.Location
}

// NewGenerator creates a slot generator. slotLengthMinutes is the uniform
// slot length for the business; loc is the business time zone.
func NewGenerator(
	db *gorm.DB,
	profRepo *repository.ProfessionalRepository,
	schedRepo *repository.ScheduleRepository,
	slotRepo *repository.SlotRepository,
	publisher EventPublisher,
	logger *logger.Logger,
	slotLengthMinutes int,
	loc *time.Location,
) *Generator {
	return &Generator{
		db:         db,
		profRepo:   profRepo,
		schedRepo:  schedRepo,
		slotRepo:   slotRepo,
		publisher:  publisher,
		logger:     logger,
		slotLength: time.Duration(slotLengthMinutes) * time.Minute,
		loc:        loc,
	}
}

// Regenerate recomputes the slot set for one professional on one date and
// reconciles the stored rows against it. RESERVED and BLOCKED slots are
// never altered; stale AVAILABLE slots are deleted, or demoted to BLOCKED
// when a historical reservation link prevents deletion.
func (g *Generator) Regenerate(ctx context.Context, professionalID string, date time.Time) ([]models.Slot, error) {
	var out []models.Slot
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slots, err := g.regenerateInTx(ctx, tx, professionalID, date)
		if err != nil {
			return err
		}
		out = slots
		return nil
	})
	if err != nil {
		return nil, err
	}

	if g.publisher != nil {
		payload := map[string]interface{}{
			"professionalId": professionalID,
			"date":           date.In(g.loc).Format("2006-01-02"),
		}
		if err := g.publisher.Publish(events.SlotsChangedEvent, payload); err != nil {
			g.logger.Error("Failed to publish slots.changed event", "professionalId", professionalID, "error", err)
		}
	}
	return out, nil
}

func (g *Generator) regenerateInTx(ctx context.Context, tx *gorm.DB, professionalID string, date time.Time) ([]models.Slot, error) {
	profRepo := g.profRepo.WithTx(tx)
	schedRepo := g.schedRepo.WithTx(tx)
	slotRepo := g.slotRepo.WithTx(tx)

	day := interval.DateOnly(date, g.loc)
	dateStr := day.Format("2006-01-02")
	weekday := int(day.Weekday())

	ws, err := profRepo.WorkScheduleForWeekday(ctx, professionalID, weekday)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if err := slotRepo.DeleteAvailableOnDate(ctx, professionalID, day); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}

	windowStart, err := atHHMM(day, ws.StartTime, g.loc)
	if err != nil {
		return nil, fmt.Errorf("work schedule %s has bad start time %q: %w", ws.ID, ws.StartTime, err)
	}
	windowEnd, err := atHHMM(day, ws.EndTime, g.loc)
	if err != nil {
		return nil, fmt.Errorf("work schedule %s has bad end time %q: %w", ws.ID, ws.EndTime, err)
	}

	busy, err := g.busyIntervals(ctx, schedRepo, ws, professionalID, day)
	if err != nil {
		return nil, err
	}

	var surviving []models.Slot
	validStarts := make(map[int64]bool)
	for cur := windowStart; !cur.Add(g.slotLength).After(windowEnd); cur = cur.Add(g.slotLength) {
		end := cur.Add(g.slotLength)
		if interval.OverlapsAny(cur, end, busy) {
			continue
		}
		validStarts[cur.Unix()] = true
		surviving = append(surviving, models.Slot{
			ProfessionalID: professionalID,
			Date:           dateStr,
			StartDatetime:  cur,
			EndDatetime:    end,
			Status:         models.SlotAvailable,
		})
	}

	if err := slotRepo.UpsertGenerated(ctx, surviving); err != nil {
		return nil, err
	}

	existing, err := slotRepo.OnDate(ctx, professionalID, day)
	if err != nil {
		return nil, err
	}
	var result []models.Slot
	for _, slot := range existing {
		if slot.Status != models.SlotAvailable {
			continue
		}
		if validStarts[slot.StartDatetime.Unix()] {
			result = append(result, slot)
			continue
		}
		referenced, err := slotRepo.ReferencedByReservation(ctx, slot.ID)
		if err != nil {
			return nil, err
		}
		if referenced {
			if err := slotRepo.SetStatus(ctx, slot.ID, models.SlotBlocked); err != nil {
				return nil, err
			}
		} else if err := slotRepo.Delete(ctx, slot.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// busyIntervals unions breaks, schedule exceptions and manual blocks for
// the day into one list. All three sources are treated equivalently.
func (g *Generator) busyIntervals(ctx context.Context, schedRepo *repository.ScheduleRepository, ws *models.WorkSchedule, professionalID string, day time.Time) ([]interval.TimeRange, error) {
	var busy []interval.TimeRange

	for _, br := range ws.Breaks {
		start, err := atHHMM(day, br.StartTime, g.loc)
		if err != nil {
			g.logger.Warn("Skipping break with bad start time", "breakId", br.ID, "startTime", br.StartTime)
			continue
		}
		end, err := atHHMM(day, br.EndTime, g.loc)
		if err != nil {
			g.logger.Warn("Skipping break with bad end time", "breakId", br.ID, "endTime", br.EndTime)
			continue
		}
		busy = append(busy, interval.TimeRange{Start: start, End: end})
	}

	exceptions, err := schedRepo.ExceptionsOnDate(ctx, professionalID, day)
	if err != nil {
		return nil, err
	}
	for _, ex := range exceptions {
		busy = append(busy, interval.TimeRange{Start: ex.StartDatetime, End: ex.EndDatetime})
	}

	blocks, err := schedRepo.BlocksOnDate(ctx, professionalID, day)
	if err != nil {
		return nil, err
	}
	for _, bl := range blocks {
		busy = append(busy, interval.TimeRange{Start: bl.StartDatetime, End: bl.EndDatetime})
	}
	return busy, nil
}

// RegenerateRange regenerates a run of consecutive days. Per-day failures
// are logged and skipped so one bad day never aborts a bulk refresh.
func (g *Generator) RegenerateRange(ctx context.Context, professionalID string, start time.Time, days int) []models.Slot {
	var out []models.Slot
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		slots, err := g.Regenerate(ctx, professionalID, day)
		if err != nil {
			g.logger.Error("Slot regeneration failed for day, skipping",
				"professionalId", professionalID, "date", day.Format("2006-01-02"), "error", err)
			continue
		}
		out = append(out, slots...)
	}
	return out
}

// atHHMM combines a date with a "HH:MM" wall-clock string in loc.
func atHHMM(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("expected HH:MM, got %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid minute in %q", hhmm)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("time out of range: %q", hhmm)
	}
	return interval.At(day, hour, minute, loc), nil
}
