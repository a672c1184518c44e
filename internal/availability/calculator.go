package availability

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/revitek/scheduling-engine/internal/interval"
	"github.com/revitek/scheduling-engine/internal/models"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
)

// Offer is one consolidated availability entry: a (start, end) window plus
// the professionals able to serve it, ordered by preference, with the
// parallel slot ids a booking would anchor on.
type Offer struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	ProfessionalIDs []string  `json:"professionals"`
	SlotIDs         []string  `json:"slotIds"`
}

// Calculator answers "who can perform these services on this date, and
// when". It is read-only; the booking transactor revalidates under lock.
type Calculator struct {
	profRepo *repository.ProfessionalRepository
	svcRepo  *repository.ServiceRepository
	slotRepo *repository.SlotRepository
	resRepo  *repository.ReservationRepository
	logger   *logger.Logger
	loc      *time.Location
}

// NewCalculator creates an availability calculator.
func NewCalculator(
	profRepo *repository.ProfessionalRepository,
	svcRepo *repository.ServiceRepository,
	slotRepo *repository.SlotRepository,
	resRepo *repository.ReservationRepository,
	logger *logger.Logger,
	loc *time.Location,
) *Calculator {
	return &Calculator{
		profRepo: profRepo,
		svcRepo:  svcRepo,
		slotRepo: slotRepo,
		resRepo:  resRepo,
		logger:   logger,
		loc:      loc,
	}
}

// Availability returns the consolidated offers for booking all of
// serviceIDs together on date. An empty result is a normal answer: no
// professional qualifies, the time-rule intersection is empty, or no
// contiguous run of slots covers the combined duration.
func (c *Calculator) Availability(ctx context.Context, serviceIDs []string, date time.Time) ([]Offer, error) {
	if len(serviceIDs) == 0 {
		return []Offer{}, nil
	}

	day := interval.DateOnly(date, c.loc)
	weekday := int(day.Weekday())

	qualified, err := c.qualifiedProfessionals(ctx, serviceIDs)
	if err != nil {
		return nil, err
	}
	if len(qualified) == 0 {
		return []Offer{}, nil
	}

	allowedStarts, restricted, err := c.commonStartTimes(ctx, serviceIDs, weekday)
	if err != nil {
		return nil, err
	}
	if restricted && len(allowedStarts) == 0 {
		return []Offer{}, nil
	}

	slots, err := c.slotRepo.AvailableOnDate(ctx, qualified, day)
	if err != nil {
		return nil, err
	}
	byProf := make(map[string][]models.Slot)
	for _, s := range slots {
		byProf[s.ProfessionalID] = append(byProf[s.ProfessionalID], s)
	}

	durations, err := c.requiredDurations(ctx, qualified, serviceIDs)
	if err != nil {
		return nil, err
	}

	var feasible []models.Slot
	for profID, profSlots := range byProf {
		required, ok := durations[profID]
		if !ok {
			continue
		}
		sort.Slice(profSlots, func(i, j int) bool {
			return profSlots[i].StartDatetime.Before(profSlots[j].StartDatetime)
		})
		for i, start := range profSlots {
			if restricted && !allowedStarts[interval.LocalHHMM(start.StartDatetime, c.loc)] {
				continue
			}
			if coversDuration(profSlots, i, required) {
				feasible = append(feasible, start)
			}
		}
	}

	loads, err := c.resRepo.DailyLoads(ctx, qualified, day)
	if err != nil {
		return nil, err
	}

	return consolidate(feasible, loads, c.loc), nil
}

// qualifiedProfessionals intersects, across all requested services, the
// sets of active professionals qualified for each.
func (c *Calculator) qualifiedProfessionals(ctx context.Context, serviceIDs []string) ([]string, error) {
	candidates := make(map[string]bool)
	for i, serviceID := range serviceIDs {
		ids, err := c.profRepo.QualifiedProfessionalIDs(ctx, serviceID)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			for _, id := range ids {
				candidates[id] = true
			}
			continue
		}
		next := make(map[string]bool, len(candidates))
		for _, id := range ids {
			if candidates[id] {
				next[id] = true
			}
		}
		candidates = next
		if len(candidates) == 0 {
			return nil, nil
		}
	}
	out := make([]string, 0, len(candidates))
	for id := range candidates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// commonStartTimes intersects the allowed-start-time rules of every
// service that has one for this weekday. restricted=false means no service
// declared a rule and any start is acceptable.
func (c *Calculator) commonStartTimes(ctx context.Context, serviceIDs []string, weekday int) (map[string]bool, bool, error) {
	var sets []map[string]bool
	for _, serviceID := range serviceIDs {
		rule, err := c.svcRepo.TimeRuleForWeekday(ctx, serviceID, weekday)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, false, err
		}
		set := make(map[string]bool, len(rule.AllowedStartTimes))
		for _, t := range rule.AllowedStartTimes {
			set[t] = true
		}
		sets = append(sets, set)
	}
	if len(sets) == 0 {
		return nil, false, nil
	}
	common := sets[0]
	for _, set := range sets[1:] {
		next := make(map[string]bool)
		for t := range common {
			if set[t] {
				next[t] = true
			}
		}
		common = next
	}
	return common, true, nil
}

// requiredDurations computes, per qualified professional, the sum of
// effective durations for the requested services, using one batched read
// of qualification rows instead of a per-professional lookup loop. A
// professional missing any requested service is dropped from the result.
func (c *Calculator) requiredDurations(ctx context.Context, professionalIDs, serviceIDs []string) (map[string]int, error) {
	quals, err := c.profRepo.QualificationsFor(ctx, professionalIDs, serviceIDs)
	if err != nil {
		return nil, err
	}
	services, err := c.svcRepo.GetByIDs(ctx, serviceIDs)
	if err != nil {
		return nil, err
	}

	type key struct{ prof, svc string }
	byPair := make(map[key]models.ProfessionalService, len(quals))
	for _, q := range quals {
		byPair[key{q.ProfessionalID, q.ServiceID}] = q
	}

	durations := make(map[string]int, len(professionalIDs))
	for _, profID := range professionalIDs {
		total := 0
		complete := true
		for _, svcID := range serviceIDs {
			q, ok := byPair[key{profID, svcID}]
			if !ok {
				complete = false
				break
			}
			svc, ok := services[svcID]
			if !ok {
				complete = false
				break
			}
			total += q.EffectiveDurationMinutes(svc)
		}
		if complete {
			durations[profID] = total
		}
	}
	return durations, nil
}

// coversDuration walks forward from slots[startIdx] accumulating coverage
// until requiredMinutes is reached. Any gap between consecutive slots
// disqualifies the start.
func coversDuration(slots []models.Slot, startIdx, requiredMinutes int) bool {
	requiredEnd := slots[startIdx].StartDatetime.Add(time.Duration(requiredMinutes) * time.Minute)
	cursor := slots[startIdx].StartDatetime
	for _, s := range slots[startIdx:] {
		if s.StartDatetime.After(cursor) {
			return false
		}
		cursor = s.EndDatetime
		if !cursor.Before(requiredEnd) {
			return true
		}
	}
	return false
}

// consolidate groups feasible starting slots by their local (start, end)
// pair and orders each group's professionals by (daily load asc, id asc)
// so the least-loaded professional is preferred deterministically.
func consolidate(feasible []models.Slot, loads map[string]int, loc *time.Location) []Offer {
	type entry struct {
		profID string
		slotID string
	}
	grouped := make(map[string]*Offer)
	entries := make(map[string][]entry)

	for _, s := range feasible {
		start := s.StartDatetime.In(loc)
		end := s.EndDatetime.In(loc)
		k := start.Format(time.RFC3339) + "/" + end.Format(time.RFC3339)
		if _, ok := grouped[k]; !ok {
			grouped[k] = &Offer{Start: start, End: end}
		}
		entries[k] = append(entries[k], entry{profID: s.ProfessionalID, slotID: s.ID})
	}

	offers := make([]Offer, 0, len(grouped))
	for k, offer := range grouped {
		es := entries[k]
		sort.Slice(es, func(i, j int) bool {
			li, lj := loads[es[i].profID], loads[es[j].profID]
			if li != lj {
				return li < lj
			}
			return es[i].profID < es[j].profID
		})
		for _, e := range es {
			offer.ProfessionalIDs = append(offer.ProfessionalIDs, e.profID)
			offer.SlotIDs = append(offer.SlotIDs, e.slotID)
		}
		offers = append(offers, *offer)
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].Start.Before(offers[j].Start) })
	return offers
}
