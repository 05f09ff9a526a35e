package medication

import (
	"time"

	"go.uber.org/zap"
)

const behaviorDocPrefix = "behavior:"

// BehaviorProfile tracks how late the user typically responds to reminders
// for one medication. Persisted per medication as its own snapshot document.
type BehaviorProfile struct {
	MedicationID   string            `json:"medication_id"`
	ResponseCount  int               `json:"response_count"`
	LateCount      int               `json:"late_count"`
	AvgLatenessMin float64           `json:"avg_lateness_min"`
	AdjustedTimes  map[string]string `json:"adjusted_times,omitempty"` // slot HH:MM -> adjusted HH:MM
}

// ReminderStrategy decides when a reminder for a schedule slot actually
// fires. The shifting heuristic is unvalidated, so it lives behind this
// interface rather than in the scheduler.
type ReminderStrategy interface {
	Record(profile *BehaviorProfile, slot string, lateness time.Duration)
	AdjustedTime(profile *BehaviorProfile, slot string) string
}

// FixedStrategy fires reminders exactly at the scheduled time
type FixedStrategy struct{}

func (FixedStrategy) Record(*BehaviorProfile, string, time.Duration) {}

func (FixedStrategy) AdjustedTime(_ *BehaviorProfile, slot string) string {
	return slot
}

// AdaptiveStrategy shifts reminders earlier for users who respond late,
// capped at MaxShift
type AdaptiveStrategy struct {
	MaxShift time.Duration
}

func NewAdaptiveStrategy() *AdaptiveStrategy {
	return &AdaptiveStrategy{MaxShift: 15 * time.Minute}
}

func (a *AdaptiveStrategy) Record(profile *BehaviorProfile, slot string, lateness time.Duration) {
	n := profile.ResponseCount + 1
	profile.ResponseCount = n
	profile.AvgLatenessMin = (profile.AvgLatenessMin*float64(n-1) + lateness.Minutes()) / float64(n)
	if lateness >= 10*time.Minute {
		profile.LateCount++
	}

	shift := profile.AvgLatenessMin
	if max := a.MaxShift.Minutes(); shift > max {
		shift = max
	}

	if shift < 1 {
		delete(profile.AdjustedTimes, slot)
		return
	}

	base := clockMinutes(slot)
	if base < 0 {
		return
	}
	if profile.AdjustedTimes == nil {
		profile.AdjustedTimes = make(map[string]string)
	}
	profile.AdjustedTimes[slot] = minutesClock(float64(base) - shift)
}

func (a *AdaptiveStrategy) AdjustedTime(profile *BehaviorProfile, slot string) string {
	if profile == nil {
		return slot
	}
	if adjusted, ok := profile.AdjustedTimes[slot]; ok {
		return adjusted
	}
	return slot
}

// BehaviorProfile loads the stored profile for a medication, or an empty one
func (s *Service) BehaviorProfile(medID string) (*BehaviorProfile, error) {
	var p BehaviorProfile
	found, err := s.store.LoadDocument(behaviorDocPrefix+medID, &p)
	if err != nil {
		return nil, err
	}
	if !found {
		p = BehaviorProfile{MedicationID: medID}
	}
	return &p, nil
}

// RecordDoseResponse feeds one observed response into the strategy and
// persists the updated profile
func (s *Service) RecordDoseResponse(medID, slot string, scheduled, acted time.Time, strategy ReminderStrategy) error {
	p, err := s.BehaviorProfile(medID)
	if err != nil {
		return err
	}

	strategy.Record(p, slot, acted.Sub(scheduled))
	return s.store.SaveDocument(behaviorDocPrefix+medID, p)
}

// DueAt returns the occurrences whose strategy-adjusted reminder time falls
// on the given minute and which have no recorded status yet
func (s *Service) DueAt(now time.Time, strategy ReminderStrategy) []Occurrence {
	s.mu.Lock()
	meds := s.snapshotLocked()
	s.mu.Unlock()

	minute := ClockKey(now)

	var due []Occurrence
	for _, med := range meds {
		profile, err := s.BehaviorProfile(med.ID)
		if err != nil {
			s.logger.Warn("failed to load behavior profile", zap.String("id", med.ID), zap.Error(err))
			profile = &BehaviorProfile{MedicationID: med.ID}
		}

		for _, occ := range OccurrencesOn(med, now) {
			if _, acted := med.StatusFor(occ.Key()); acted {
				continue
			}
			if strategy.AdjustedTime(profile, occ.Time) == minute {
				due = append(due, occ)
			}
		}
	}
	return due
}
