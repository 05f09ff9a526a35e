package medication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_NoLedger(t *testing.T) {
	med := &Medication{ID: "med1", Times: []string{"08:00", "20:00"}}
	now := time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC)

	res := Aggregate([]*Medication{med}, date(2024, 1, 1), date(2024, 1, 1), now)

	assert.Equal(t, 2, res.Scheduled)
	assert.Equal(t, 0, res.Taken)
	assert.Equal(t, 2, res.Missed)
	assert.Equal(t, 0, res.Percentage)
}

func TestAggregate_HalfTaken(t *testing.T) {
	med := &Medication{
		ID:    "med1",
		Times: []string{"08:00", "20:00"},
		DoseStatus: map[string]DoseStatus{
			"2024-01-01T08:00": StatusTaken,
		},
	}
	now := time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC)

	res := Aggregate([]*Medication{med}, date(2024, 1, 1), date(2024, 1, 1), now)

	assert.Equal(t, 2, res.Scheduled)
	assert.Equal(t, 1, res.Taken)
	assert.Equal(t, 50, res.Percentage)
}

func TestAggregate_FutureExcluded(t *testing.T) {
	med := &Medication{ID: "med1", Times: []string{"08:00", "20:00"}}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	res := Aggregate([]*Medication{med}, date(2024, 1, 1), date(2024, 1, 1), now)

	assert.Equal(t, 1, res.Scheduled, "the 20:00 dose is not yet due")
	assert.Equal(t, 1, res.Missed)
}

func TestAggregate_ZeroScheduled(t *testing.T) {
	res := Aggregate(nil, date(2024, 1, 1), date(2024, 1, 7), time.Now())

	assert.Equal(t, 0, res.Scheduled)
	assert.Equal(t, 0, res.Percentage, "0, never NaN")
}

func TestAggregate_PercentageBounds(t *testing.T) {
	med := &Medication{
		ID:    "med1",
		Times: []string{"08:00"},
		DoseStatus: map[string]DoseStatus{
			"2024-01-01T08:00": StatusTaken,
			"2024-01-02T08:00": StatusTaken,
			"2024-01-03T08:00": StatusTaken,
		},
	}
	now := time.Date(2024, 1, 3, 23, 0, 0, 0, time.UTC)

	res := Aggregate([]*Medication{med}, date(2024, 1, 1), date(2024, 1, 3), now)
	assert.Equal(t, 100, res.Percentage)
}

func TestStreak_AllTaken(t *testing.T) {
	now := time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC)
	med := &Medication{
		ID:        "med1",
		Times:     []string{"08:00"},
		CreatedAt: date(2024, 1, 1),
		DoseStatus: map[string]DoseStatus{
			"2024-01-01T08:00": StatusTaken,
			"2024-01-02T08:00": StatusTaken,
			"2024-01-03T08:00": StatusTaken,
			"2024-01-04T08:00": StatusTaken,
			"2024-01-05T08:00": StatusTaken,
		},
	}

	res := Streak([]*Medication{med}, now)
	assert.Equal(t, 5, res.Current)
	assert.Equal(t, 5, res.Longest)
	assert.Equal(t, 5, res.TotalTaken)
	assert.True(t, res.DayMilestones[0].Achieved, "3-day milestone")
	assert.False(t, res.DayMilestones[1].Achieved, "7-day milestone")
}

func TestStreak_BrokenByMissedDay(t *testing.T) {
	now := time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC)
	med := &Medication{
		ID:        "med1",
		Times:     []string{"08:00"},
		CreatedAt: date(2024, 1, 1),
		DoseStatus: map[string]DoseStatus{
			"2024-01-01T08:00": StatusTaken,
			"2024-01-02T08:00": StatusTaken,
			// Jan 3 missed
			"2024-01-04T08:00": StatusTaken,
			"2024-01-05T08:00": StatusTaken,
		},
	}

	res := Streak([]*Medication{med}, now)
	assert.Equal(t, 2, res.Current)
	assert.Equal(t, 2, res.Longest)
}

func TestStreak_TodayMissedDoesNotBreak(t *testing.T) {
	now := time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC)
	med := &Medication{
		ID:        "med1",
		Times:     []string{"08:00"},
		CreatedAt: date(2024, 1, 1),
		DoseStatus: map[string]DoseStatus{
			"2024-01-03T08:00": StatusTaken,
			"2024-01-04T08:00": StatusTaken,
			// today (Jan 5) missed so far
		},
	}

	res := Streak([]*Medication{med}, now)
	assert.Equal(t, 2, res.Current, "today does not count but does not break the run")
}

func TestStreak_ZeroDueDaysCount(t *testing.T) {
	// Tapering medication with nothing due on days 3-4
	now := time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC)
	med := &Medication{
		ID:         "med1",
		CreatedAt:  date(2024, 1, 1),
		TaperStart: "2024-01-01",
		TaperSchedule: []TaperStep{
			{Day: 1, Tablets: 1},
			{Day: 2, Tablets: 1},
			{Day: 5, Tablets: 1},
		},
		DoseStatus: map[string]DoseStatus{
			"2024-01-01T08:00": StatusTaken,
			"2024-01-02T08:00": StatusTaken,
			"2024-01-05T08:00": StatusTaken,
		},
	}

	res := Streak([]*Medication{med}, now)
	assert.Equal(t, 5, res.Current, "empty days extend the streak")
}

func TestStreak_DoseMilestones(t *testing.T) {
	now := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	status := make(map[string]DoseStatus)
	for i := 0; i < 12; i++ {
		status[time.Date(2023, 12, 1+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")+"T08:00"] = StatusTaken
	}
	med := &Medication{ID: "med1", Times: []string{"08:00"}, CreatedAt: date(2023, 12, 1), DoseStatus: status}

	res := Streak([]*Medication{med}, now)
	assert.Equal(t, 12, res.TotalTaken)
	assert.True(t, res.DoseMilestones[0].Achieved, "10 doses")
	assert.False(t, res.DoseMilestones[1].Achieved, "50 doses")
}

func TestWeeklySummary_Buckets(t *testing.T) {
	weekStart := date(2024, 1, 1)
	now := time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC)

	status := make(map[string]DoseStatus)
	for d := 1; d <= 7; d++ {
		day := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		status[day+"T08:00"] = StatusTaken
		if d <= 3 {
			status[day+"T20:00"] = StatusTaken
		}
	}
	med := &Medication{
		ID:         "med1",
		Times:      []string{"08:00", "20:00"},
		CreatedAt:  date(2024, 1, 1),
		DoseStatus: status,
	}

	res := WeeklySummary([]*Medication{med}, weekStart, now)

	assert.Equal(t, 14, res.Overall.Scheduled)
	assert.Equal(t, 10, res.Overall.Taken)

	morning := res.Buckets["morning"]
	evening := res.Buckets["evening"]
	assert.Equal(t, 7, morning.Scheduled)
	assert.Equal(t, 100, morning.Percentage)
	assert.Equal(t, 7, evening.Scheduled)
	assert.Equal(t, 43, evening.Percentage)

	assert.Equal(t, "morning", res.BestBucket)
	assert.Equal(t, "evening", res.WorstBucket)
	assert.Equal(t, 0, res.Buckets["afternoon"].Scheduled)
}

func TestWeeklySummary_EmptyWeek(t *testing.T) {
	res := WeeklySummary(nil, date(2024, 1, 1), time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC))

	assert.Equal(t, bucketNone, res.BestBucket)
	assert.Equal(t, bucketNone, res.WorstBucket)
	assert.Equal(t, 0, res.Overall.Percentage)
	assert.Empty(t, res.Achievements)
}

func TestWeeklySummary_PerfectWeekAchievement(t *testing.T) {
	weekStart := date(2024, 1, 1)
	now := time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC)

	status := make(map[string]DoseStatus)
	for d := 1; d <= 7; d++ {
		day := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		status[day+"T08:00"] = StatusTaken
	}
	med := &Medication{ID: "med1", Times: []string{"08:00"}, CreatedAt: date(2024, 1, 1), DoseStatus: status}

	res := WeeklySummary([]*Medication{med}, weekStart, now)
	require.NotEmpty(t, res.Achievements)
	assert.Contains(t, res.Achievements[0], "Perfect week")
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, "morning", bucketFor("05:00"))
	assert.Equal(t, "morning", bucketFor("11:59"))
	assert.Equal(t, "afternoon", bucketFor("12:00"))
	assert.Equal(t, "afternoon", bucketFor("16:59"))
	assert.Equal(t, "evening", bucketFor("17:00"))
	assert.Equal(t, "evening", bucketFor("23:00"))
	assert.Equal(t, "evening", bucketFor("04:30"))
}
