package medication

import (
	"time"

	"github.com/pilltrack/pilltrack/internal/metrics"
)

// Classification is the derived state of one occurrence at a point in time
type Classification string

const (
	ClassScheduled Classification = "scheduled"
	ClassTaken     Classification = "taken"
	ClassSkipped   Classification = "skipped"
	ClassMissed    Classification = "missed"
)

// MissedPolicy controls how long past the scheduled time an unacted dose
// waits before being called missed. Two call sites, two policies:
// reports and history use StrictPolicy, the proactive banner uses
// BannerPolicy so a dose a few minutes overdue is not flagged immediately.
type MissedPolicy struct {
	Grace time.Duration
}

var (
	StrictPolicy = MissedPolicy{Grace: 0}
	BannerPolicy = MissedPolicy{Grace: 30 * time.Minute}
)

// Classify derives an occurrence's state. A recorded status always wins
// regardless of time, so a taken dose never turns missed later.
func Classify(med *Medication, occ Occurrence, now time.Time, policy MissedPolicy) Classification {
	if status, ok := med.StatusFor(occ.Key()); ok {
		if status == StatusTaken {
			return ClassTaken
		}
		return ClassSkipped
	}

	instant := occ.Instant(now.Location())
	if instant.After(now) {
		return ClassScheduled
	}
	if now.Sub(instant) < policy.Grace {
		return ClassScheduled
	}
	return ClassMissed
}

// SessionScan inspects today and yesterday for missed doses to build the
// initial prompt. It runs at most once per process; later calls return nil.
func (s *Service) SessionScan(now time.Time) []Occurrence {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanned {
		return nil
	}
	s.scanned = true

	var missed []Occurrence
	for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
		for _, med := range s.meds {
			for _, occ := range OccurrencesOn(med, day) {
				if Classify(med, occ, now, BannerPolicy) == ClassMissed {
					missed = append(missed, occ)
				}
			}
		}
	}

	metrics.RecordMissedSurfaced(int64(len(missed)))
	return missed
}
