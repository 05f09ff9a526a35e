package medication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOccurrencesOn_FixedTimes(t *testing.T) {
	med := &Medication{
		ID:     "med1",
		Name:   "Aspirin",
		Dosage: "100mg",
		Times:  []string{"20:00", "08:00"},
	}

	for _, d := range []time.Time{date(2024, 1, 1), date(2024, 6, 15), date(2030, 12, 31)} {
		occs := OccurrencesOn(med, d)
		require.Len(t, occs, 2)
		assert.Equal(t, "08:00", occs[0].Time)
		assert.Equal(t, "20:00", occs[1].Time)
		assert.Equal(t, "100mg", occs[0].DosageLabel)
		assert.Equal(t, DateKey(d), occs[0].Date)
	}
}

func TestOccurrencesOn_FixedTimes_Empty(t *testing.T) {
	med := &Medication{ID: "med1", Name: "Aspirin", Dosage: "100mg"}
	assert.Empty(t, OccurrencesOn(med, date(2024, 1, 1)))
}

func TestOccurrencesOn_Tapering(t *testing.T) {
	med := &Medication{
		ID:         "med1",
		Name:       "Prednisone",
		Dosage:     "5mg",
		TaperStart: "2024-01-01",
		TaperSchedule: []TaperStep{
			{Day: 1, Tablets: 3},
			{Day: 2, Tablets: 1},
		},
	}

	day1 := OccurrencesOn(med, date(2024, 1, 1))
	require.Len(t, day1, 3)
	assert.Equal(t, "08:00", day1[0].Time)
	assert.Equal(t, "15:00", day1[1].Time)
	assert.Equal(t, "22:00", day1[2].Time)
	assert.Equal(t, "1 tablet", day1[0].DosageLabel)

	day2 := OccurrencesOn(med, date(2024, 1, 2))
	require.Len(t, day2, 1)
	assert.Equal(t, "08:00", day2[0].Time)

	assert.Empty(t, OccurrencesOn(med, date(2024, 1, 3)), "past the table end")
}

func TestOccurrencesOn_Tapering_BeforeStart(t *testing.T) {
	med := &Medication{
		ID:            "med1",
		TaperStart:    "2024-01-10",
		TaperSchedule: []TaperStep{{Day: 1, Tablets: 2}},
	}

	assert.Empty(t, OccurrencesOn(med, date(2024, 1, 9)))
	assert.Empty(t, OccurrencesOn(med, date(2023, 12, 1)))
}

func TestOccurrencesOn_Tapering_ZeroTablets(t *testing.T) {
	med := &Medication{
		ID:         "med1",
		TaperStart: "2024-01-01",
		TaperSchedule: []TaperStep{
			{Day: 1, Tablets: 0},
			{Day: 2, Tablets: -1},
		},
	}

	assert.Empty(t, OccurrencesOn(med, date(2024, 1, 1)))
	assert.Empty(t, OccurrencesOn(med, date(2024, 1, 2)))
}

func TestOccurrencesOn_TaperingOverridesTimes(t *testing.T) {
	med := &Medication{
		ID:            "med1",
		Times:         []string{"09:00", "21:00"},
		TaperStart:    "2024-01-01",
		TaperSchedule: []TaperStep{{Day: 1, Tablets: 1}},
	}

	occs := OccurrencesOn(med, date(2024, 1, 1))
	require.Len(t, occs, 1)
	assert.Equal(t, "08:00", occs[0].Time)
}

func TestOccurrencesOn_Tapering_Spacing(t *testing.T) {
	med := &Medication{
		ID:            "med1",
		TaperStart:    "2024-01-01",
		TaperSchedule: []TaperStep{{Day: 1, Tablets: 4}},
	}

	occs := OccurrencesOn(med, date(2024, 1, 1))
	require.Len(t, occs, 4)

	// 14 hours over 3 intervals = 280 minutes each, rounded to the minute
	assert.Equal(t, "08:00", occs[0].Time)
	assert.Equal(t, "12:40", occs[1].Time)
	assert.Equal(t, "17:20", occs[2].Time)
	assert.Equal(t, "22:00", occs[3].Time)
}

func TestOccurrenceKeyAndInstant(t *testing.T) {
	occ := Occurrence{MedicationID: "med1", Date: "2024-01-01", Time: "08:00"}
	assert.Equal(t, "2024-01-01T08:00", occ.Key())

	instant := occ.Instant(time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), instant)
}
