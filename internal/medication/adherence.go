package medication

import (
	"math"
	"strconv"
	"time"
)

// AggregateResult is the rollup for a date window. Future occurrences inside
// the window are excluded from the denominator.
type AggregateResult struct {
	Scheduled  int `json:"scheduled"`
	Taken      int `json:"taken"`
	Skipped    int `json:"skipped"`
	Missed     int `json:"missed"`
	Percentage int `json:"percentage"`
}

// Milestone is a threshold with an achieved flag
type Milestone struct {
	Threshold int  `json:"threshold"`
	Achieved  bool `json:"achieved"`
}

// StreakResult is the consecutive-day adherence aggregate
type StreakResult struct {
	Current        int         `json:"current"`
	Longest        int         `json:"longest"`
	TotalTaken     int         `json:"total_taken"`
	DayMilestones  []Milestone `json:"day_milestones"`
	DoseMilestones []Milestone `json:"dose_milestones"`
}

// BucketStats is adherence for one coarse time-of-day bucket
type BucketStats struct {
	Scheduled  int `json:"scheduled"`
	Taken      int `json:"taken"`
	Percentage int `json:"percentage"`
}

// WeeklySummaryResult is the coaching rollup for one 7-day window
type WeeklySummaryResult struct {
	Overall      AggregateResult        `json:"overall"`
	Buckets      map[string]BucketStats `json:"buckets"`
	BestBucket   string                 `json:"best_bucket"`  // "N/A" when no bucket has doses
	WorstBucket  string                 `json:"worst_bucket"` // "N/A" when no bucket has doses
	Achievements []string               `json:"achievements"`
}

var (
	dayMilestoneThresholds  = []int{3, 7, 14, 30, 60, 90}
	doseMilestoneThresholds = []int{10, 50, 100, 250, 500}
)

const bucketNone = "N/A"

// Aggregate rolls up every occurrence of every medication over the inclusive
// date range [start, end]. Pure function of its inputs; every caller that
// needs an adherence number goes through here.
func Aggregate(meds []*Medication, start, end, now time.Time) AggregateResult {
	var res AggregateResult

	forEachDueOccurrence(meds, start, end, now, func(med *Medication, occ Occurrence) {
		res.Scheduled++
		switch Classify(med, occ, now, StrictPolicy) {
		case ClassTaken:
			res.Taken++
		case ClassSkipped:
			res.Skipped++
		case ClassMissed:
			res.Missed++
		}
	})

	res.Percentage = percentage(res.Taken, res.Scheduled)
	return res
}

// Streak walks backward from today. A day extends the streak when every one
// of its due occurrences is taken; a day with nothing due also extends it.
// Today with a missed dose does not break the streak, it just does not count.
func Streak(meds []*Medication, now time.Time) StreakResult {
	res := StreakResult{}

	for _, med := range meds {
		res.TotalTaken += med.TotalTaken()
	}

	lookback := streakLookbackDays(meds, now)

	for i := 0; i < lookback; i++ {
		day := now.AddDate(0, 0, -i)
		if dayFullyTaken(meds, day, now) {
			res.Current++
		} else if i == 0 {
			continue
		} else {
			break
		}
	}

	// Longest run over the lookback window
	run := 0
	for i := lookback - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		if dayFullyTaken(meds, day, now) {
			run++
			if run > res.Longest {
				res.Longest = run
			}
		} else {
			run = 0
		}
	}
	if res.Current > res.Longest {
		res.Longest = res.Current
	}

	for _, d := range dayMilestoneThresholds {
		res.DayMilestones = append(res.DayMilestones, Milestone{Threshold: d, Achieved: res.Current >= d})
	}
	for _, d := range doseMilestoneThresholds {
		res.DoseMilestones = append(res.DoseMilestones, Milestone{Threshold: d, Achieved: res.TotalTaken >= d})
	}

	return res
}

// WeeklySummary is the Aggregate rollup for weekStart..weekStart+6 plus a
// morning/afternoon/evening breakdown and coaching achievements
func WeeklySummary(meds []*Medication, weekStart, now time.Time) WeeklySummaryResult {
	weekEnd := weekStart.AddDate(0, 0, 6)

	res := WeeklySummaryResult{
		Overall: Aggregate(meds, weekStart, weekEnd, now),
		Buckets: map[string]BucketStats{
			"morning":   {},
			"afternoon": {},
			"evening":   {},
		},
		BestBucket:  bucketNone,
		WorstBucket: bucketNone,
	}

	forEachDueOccurrence(meds, weekStart, weekEnd, now, func(med *Medication, occ Occurrence) {
		name := bucketFor(occ.Time)
		b := res.Buckets[name]
		b.Scheduled++
		if Classify(med, occ, now, StrictPolicy) == ClassTaken {
			b.Taken++
		}
		res.Buckets[name] = b
	})

	bestPct, worstPct := -1, 101
	for _, name := range []string{"morning", "afternoon", "evening"} {
		b := res.Buckets[name]
		if b.Scheduled == 0 {
			continue
		}
		b.Percentage = percentage(b.Taken, b.Scheduled)
		res.Buckets[name] = b

		if b.Percentage > bestPct {
			bestPct = b.Percentage
			res.BestBucket = name
		}
		if b.Percentage < worstPct {
			worstPct = b.Percentage
			res.WorstBucket = name
		}
	}

	res.Achievements = achievements(res.Overall, Streak(meds, now))
	return res
}

func achievements(overall AggregateResult, streak StreakResult) []string {
	var out []string
	if overall.Scheduled > 0 && overall.Taken == overall.Scheduled {
		out = append(out, "Perfect week: every scheduled dose taken")
	} else if overall.Percentage >= 90 {
		out = append(out, "Great week: 90%+ adherence")
	}
	for _, m := range streak.DayMilestones {
		if m.Achieved && streak.Current == m.Threshold {
			out = append(out, "Streak milestone reached: "+strconv.Itoa(m.Threshold)+" days")
		}
	}
	return out
}

// forEachDueOccurrence visits every occurrence in [start, end] whose instant
// is at or before now
func forEachDueOccurrence(meds []*Medication, start, end, now time.Time, fn func(*Medication, Occurrence)) {
	for day := dateOnly(start); !day.After(dateOnly(end)); day = day.AddDate(0, 0, 1) {
		for _, med := range meds {
			for _, occ := range OccurrencesOn(med, day) {
				if occ.Instant(now.Location()).After(now) {
					continue
				}
				fn(med, occ)
			}
		}
	}
}

// dayFullyTaken reports whether every due occurrence on day is taken
func dayFullyTaken(meds []*Medication, day, now time.Time) bool {
	for _, med := range meds {
		for _, occ := range OccurrencesOn(med, day) {
			if occ.Instant(now.Location()).After(now) {
				continue
			}
			if status, ok := med.StatusFor(occ.Key()); !ok || status != StatusTaken {
				return false
			}
		}
	}
	return true
}

// streakLookbackDays bounds the backward walk at the oldest medication
func streakLookbackDays(meds []*Medication, now time.Time) int {
	const maxLookback = 365

	oldest := now
	for _, med := range meds {
		if !med.CreatedAt.IsZero() && med.CreatedAt.Before(oldest) {
			oldest = med.CreatedAt
		}
	}

	days := daysBetween(oldest, now) + 1
	if days < 1 {
		days = 1
	}
	if days > maxLookback {
		days = maxLookback
	}
	return days
}

// bucketFor maps a clock time to a coarse time-of-day bucket. Morning runs
// 05:00-11:59, afternoon 12:00-16:59, everything else is evening.
func bucketFor(clock string) string {
	m := clockMinutes(clock)
	h := m / 60
	switch {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 17:
		return "afternoon"
	default:
		return "evening"
	}
}

func percentage(taken, scheduled int) int {
	if scheduled == 0 {
		return 0
	}
	return int(math.Round(100 * float64(taken) / float64(scheduled)))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
