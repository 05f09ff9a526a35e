// Package export renders the user's data as CSV for download or backup.
package export

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"

	"github.com/pilltrack/pilltrack/internal/medication"
)

// MedicationsCSV renders the medication list
func MedicationsCSV(meds []*medication.Medication) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Name", "Dosage", "Frequency", "Food Instruction", "Times", "Quantity", "Refill Threshold"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, med := range meds {
		row := []string{
			med.Name,
			med.Dosage,
			med.Frequency,
			string(med.FoodInstruction),
			strings.Join(med.Times, "; "),
			formatOptionalInt(med.Quantity),
			formatOptionalInt(med.RefillThreshold),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

type historyRow struct {
	key    string
	record []string
}

// DoseHistoryCSV renders every recorded dose status plus reason-only missed
// entries, newest first
func DoseHistoryCSV(meds []*medication.Medication) ([]byte, error) {
	var rows []historyRow

	for _, med := range meds {
		for key, status := range med.DoseStatus {
			date, clock := splitKey(key)
			rows = append(rows, historyRow{
				key:    key,
				record: []string{date, clock, med.Name, med.Dosage, string(status), med.MissedReasons[key]},
			})
		}
		for key, reason := range med.MissedReasons {
			if _, has := med.DoseStatus[key]; has {
				continue
			}
			date, clock := splitKey(key)
			rows = append(rows, historyRow{
				key:    key,
				record: []string{date, clock, med.Name, med.Dosage, "missed", reason},
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].key > rows[j].key
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Date", "Time", "Medication", "Dosage", "Status", "Reason"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row.record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func splitKey(key string) (date, clock string) {
	if i := strings.IndexByte(key, 'T'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
