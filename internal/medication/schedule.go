package medication

import "time"

// Tapering doses are spread across a fixed daytime window
const (
	taperWindowStart = 8 * 60  // 08:00
	taperWindowEnd   = 22 * 60 // 22:00
)

// OccurrencesOn expands a medication's schedule for one calendar date. A
// tapering schedule, when present, fully overrides the static times.
func OccurrencesOn(med *Medication, date time.Time) []Occurrence {
	if len(med.TaperSchedule) > 0 {
		return taperOccurrences(med, date)
	}

	occs := make([]Occurrence, 0, len(med.Times))
	for _, clock := range sortedTimes(med.Times) {
		occs = append(occs, Occurrence{
			MedicationID: med.ID,
			Name:         med.Name,
			Date:         DateKey(date),
			Time:         clock,
			DosageLabel:  med.Dosage,
		})
	}
	return occs
}

func taperOccurrences(med *Medication, date time.Time) []Occurrence {
	start, err := time.ParseInLocation("2006-01-02", med.TaperStart, date.Location())
	if err != nil {
		return nil
	}

	dayNumber := daysBetween(start, date) + 1
	if dayNumber < 1 {
		return nil
	}

	tablets := 0
	found := false
	for _, step := range med.TaperSchedule {
		if step.Day == dayNumber {
			tablets = step.Tablets
			found = true
			break
		}
	}
	if !found || tablets <= 0 {
		return nil
	}

	occs := make([]Occurrence, 0, tablets)
	if tablets == 1 {
		occs = append(occs, taperOccurrence(med, date, float64(taperWindowStart)))
		return occs
	}

	interval := float64(taperWindowEnd-taperWindowStart) / float64(tablets-1)
	for i := 0; i < tablets; i++ {
		occs = append(occs, taperOccurrence(med, date, float64(taperWindowStart)+float64(i)*interval))
	}
	return occs
}

func taperOccurrence(med *Medication, date time.Time, minutes float64) Occurrence {
	return Occurrence{
		MedicationID: med.ID,
		Name:         med.Name,
		Date:         DateKey(date),
		Time:         minutesClock(minutes),
		DosageLabel:  "1 tablet",
	}
}

// daysBetween counts whole calendar days from a to b, ignoring time of day
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	aMid := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bMid := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bMid.Sub(aMid).Hours() / 24)
}
