package metrics

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Error("New() returned nil")
	}
}

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
}

func TestRecordDoseMarked(t *testing.T) {
	m := New()
	m.RecordDoseMarked("taken")
	m.RecordDoseMarked("skipped")
	m.RecordDoseMarked("")

	if m.dosesMarkedTaken.Load() != 1 {
		t.Error("Taken doses not incremented")
	}
	if m.dosesMarkedSkipped.Load() != 1 {
		t.Error("Skipped doses not incremented")
	}
	if m.dosesUnmarked.Load() != 1 {
		t.Error("Unmarked doses not incremented")
	}
}

func TestRecordUndo(t *testing.T) {
	m := New()
	m.RecordUndo(false)
	m.RecordUndo(true)

	if m.undosPerformed.Load() != 1 {
		t.Error("Performed undos not incremented")
	}
	if m.undosExpired.Load() != 1 {
		t.Error("Expired undos not incremented")
	}
}

func TestRecordAdvisoryCall(t *testing.T) {
	m := New()
	m.RecordAdvisoryCall(true)
	m.RecordAdvisoryCall(false)

	if m.advisoryCalls.Load() != 2 {
		t.Error("Advisory calls not incremented")
	}
	if m.advisoryFailures.Load() != 1 {
		t.Error("Advisory failures not incremented")
	}
}

func TestRecordPRNDose(t *testing.T) {
	m := New()
	m.RecordPRNDose(true)
	m.RecordPRNDose(false)
	m.RecordPRNDose(false)

	if m.prnDosesRecorded.Load() != 1 {
		t.Error("Recorded PRN doses not incremented")
	}
	if m.prnDosesRejected.Load() != 2 {
		t.Error("Rejected PRN doses not incremented")
	}
}

func TestRecordMedicationOp(t *testing.T) {
	m := New()
	m.RecordMedicationOp("add")
	m.RecordMedicationOp("add")
	m.RecordMedicationOp("delete")

	s := m.Snapshot()
	if s.MedicationOps["add"] != 2 {
		t.Errorf("Expected 2 add ops, got %d", s.MedicationOps["add"])
	}
	if s.MedicationOps["delete"] != 1 {
		t.Errorf("Expected 1 delete op, got %d", s.MedicationOps["delete"])
	}
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.RecordDoseMarked("taken")
	m.RecordReminderFired()
	m.RecordAdvisoryCall(true)
	m.RecordAdvisoryCall(true)

	s := m.Snapshot()
	if s.DosesMarkedTaken != 1 {
		t.Error("Snapshot missing taken doses")
	}
	if s.RemindersFired != 1 {
		t.Error("Snapshot missing reminders")
	}
	if s.AdvisorySuccessRate != 100 {
		t.Errorf("Expected 100%% advisory success rate, got %f", s.AdvisorySuccessRate)
	}
}

func TestSnapshot_ZeroAdvisoryCalls(t *testing.T) {
	m := New()
	s := m.Snapshot()

	if s.AdvisorySuccessRate != 0 {
		t.Error("Success rate should be 0 with no calls")
	}
}

func TestPrometheus(t *testing.T) {
	m := New()
	m.RecordDoseMarked("taken")
	m.RecordMedicationOp("add")

	out := m.Prometheus()

	if !strings.Contains(out, "pilltrack_doses_marked_taken_total 1") {
		t.Error("Prometheus output missing taken counter")
	}
	if !strings.Contains(out, "pilltrack_medication_ops_total{op=\"add\"} 1") {
		t.Error("Prometheus output missing medication op counter")
	}
	if !strings.Contains(out, "pilltrack_uptime_seconds") {
		t.Error("Prometheus output missing uptime gauge")
	}
}

func TestIncrementDecrementActiveStreams(t *testing.T) {
	m := New()
	m.IncrementActiveStreams()
	m.IncrementActiveStreams()
	m.DecrementActiveStreams()

	if m.activeStreams.Load() != 1 {
		t.Errorf("Expected 1 active stream, got %d", m.activeStreams.Load())
	}
}
