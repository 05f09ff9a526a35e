package medication

import (
	"math"
	"sort"
	"time"
)

// DoseStatus is an explicit user-recorded status for one occurrence.
// Absence of a ledger entry means "not yet acted on".
type DoseStatus string

const (
	StatusTaken   DoseStatus = "taken"
	StatusSkipped DoseStatus = "skipped"
)

// FoodInstruction tags how a medication relates to meals
type FoodInstruction string

const (
	FoodWith    FoodInstruction = "with-food"
	FoodWithout FoodInstruction = "without-food"
	FoodNone    FoodInstruction = "none"
)

// TaperStep is one row of a day-indexed tapering table
type TaperStep struct {
	Day     int `json:"day"`
	Tablets int `json:"tablets"`
}

// Medication is the authoritative record for one medication. The dose ledger
// and refill history live inside it and the whole collection is persisted as
// a single snapshot document.
type Medication struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Dosage          string          `json:"dosage"`
	Frequency       string          `json:"frequency"`
	FoodInstruction FoodInstruction `json:"food_instruction"`
	Times           []string        `json:"times"` // wall-clock HH:MM, user-local

	Quantity        *int     `json:"quantity,omitempty"`
	RefillThreshold *int     `json:"refill_threshold,omitempty"`
	RefillNotified  bool     `json:"refill_notified"`
	RefillHistory   []string `json:"refill_history,omitempty"` // YYYY-MM-DD

	TaperStart    string      `json:"taper_start,omitempty"` // YYYY-MM-DD
	TaperSchedule []TaperStep `json:"taper_schedule,omitempty"`

	// Ledger entries keyed "YYYY-MM-DDTHH:MM". Missing key = pending/missed.
	DoseStatus    map[string]DoseStatus `json:"dose_status,omitempty"`
	MissedReasons map[string]string     `json:"missed_reasons,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Occurrence is one scheduled instance of taking a medication. Derived from
// the schedule on demand, never stored.
type Occurrence struct {
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	Date         string `json:"date"` // YYYY-MM-DD
	Time         string `json:"time"` // HH:MM
	DosageLabel  string `json:"dosage_label"`
}

// Key returns the ledger key for this occurrence
func (o Occurrence) Key() string {
	return o.Date + "T" + o.Time
}

// Instant resolves the occurrence to a point in time in loc
func (o Occurrence) Instant(loc *time.Location) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04", o.Key(), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// clone returns a deep copy. The service hands copies across its lock
// boundary so callers can read them without synchronization.
func (m *Medication) clone() *Medication {
	out := *m
	out.Times = append([]string(nil), m.Times...)
	out.RefillHistory = append([]string(nil), m.RefillHistory...)
	out.TaperSchedule = append([]TaperStep(nil), m.TaperSchedule...)
	out.Quantity = copyInt(m.Quantity)
	out.RefillThreshold = copyInt(m.RefillThreshold)
	if m.DoseStatus != nil {
		out.DoseStatus = make(map[string]DoseStatus, len(m.DoseStatus))
		for k, v := range m.DoseStatus {
			out.DoseStatus[k] = v
		}
	}
	if m.MissedReasons != nil {
		out.MissedReasons = make(map[string]string, len(m.MissedReasons))
		for k, v := range m.MissedReasons {
			out.MissedReasons[k] = v
		}
	}
	return &out
}

// StatusFor looks up the ledger entry for an occurrence key
func (m *Medication) StatusFor(key string) (DoseStatus, bool) {
	if m.DoseStatus == nil {
		return "", false
	}
	s, ok := m.DoseStatus[key]
	return s, ok
}

// RefillNeeded reports whether quantity has reached the refill threshold
func (m *Medication) RefillNeeded() bool {
	if m.Quantity == nil || m.RefillThreshold == nil {
		return false
	}
	return *m.Quantity <= *m.RefillThreshold
}

// TotalTaken counts ledger entries with status taken
func (m *Medication) TotalTaken() int {
	n := 0
	for _, s := range m.DoseStatus {
		if s == StatusTaken {
			n++
		}
	}
	return n
}

// DateKey formats a time as a ledger date component
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ClockKey formats a time as a ledger time component
func ClockKey(t time.Time) string {
	return t.Format("15:04")
}

// clockMinutes parses HH:MM into minutes since midnight, -1 on bad input
func clockMinutes(clock string) int {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

// minutesClock formats minutes since midnight as HH:MM, rounding to the
// nearest minute first
func minutesClock(minutes float64) string {
	m := int(math.Round(minutes))
	return time.Date(0, 1, 1, m/60, m%60, 0, 0, time.UTC).Format("15:04")
}

// sortedTimes returns a sorted copy of the medication's configured times
func sortedTimes(times []string) []string {
	out := make([]string, len(times))
	copy(out, times)
	sort.Strings(out)
	return out
}
