package metrics

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Metrics struct {
	startTime time.Time

	dosesMarkedTaken   atomic.Int64
	dosesMarkedSkipped atomic.Int64
	dosesUnmarked      atomic.Int64
	undosPerformed     atomic.Int64
	undosExpired       atomic.Int64

	missedSurfaced atomic.Int64

	remindersFired   atomic.Int64
	refillAlerts     atomic.Int64
	prnDosesRecorded atomic.Int64
	prnDosesRejected atomic.Int64

	advisoryCalls    atomic.Int64
	advisoryFailures atomic.Int64

	snapshotSaves      atomic.Int64
	snapshotLoadErrors atomic.Int64

	activeStreams atomic.Int64

	medicationOps  map[string]*atomic.Int64
	medicationLock sync.Mutex
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	return &Metrics{
		startTime:     time.Now(),
		medicationOps: make(map[string]*atomic.Int64),
	}
}

func (m *Metrics) RecordDoseMarked(status string) {
	switch status {
	case "taken":
		m.dosesMarkedTaken.Add(1)
	case "skipped":
		m.dosesMarkedSkipped.Add(1)
	default:
		m.dosesUnmarked.Add(1)
	}
}

func (m *Metrics) RecordUndo(expired bool) {
	if expired {
		m.undosExpired.Add(1)
	} else {
		m.undosPerformed.Add(1)
	}
}

func (m *Metrics) RecordMissedSurfaced(count int64) {
	m.missedSurfaced.Add(count)
}

func (m *Metrics) RecordReminderFired() {
	m.remindersFired.Add(1)
}

func (m *Metrics) RecordRefillAlert() {
	m.refillAlerts.Add(1)
}

func (m *Metrics) RecordPRNDose(accepted bool) {
	if accepted {
		m.prnDosesRecorded.Add(1)
	} else {
		m.prnDosesRejected.Add(1)
	}
}

func (m *Metrics) RecordAdvisoryCall(success bool) {
	m.advisoryCalls.Add(1)
	if !success {
		m.advisoryFailures.Add(1)
	}
}

func (m *Metrics) RecordSnapshotSave() {
	m.snapshotSaves.Add(1)
}

func (m *Metrics) RecordSnapshotLoadError() {
	m.snapshotLoadErrors.Add(1)
}

func (m *Metrics) IncrementActiveStreams() {
	m.activeStreams.Add(1)
}

func (m *Metrics) DecrementActiveStreams() {
	m.activeStreams.Add(-1)
}

func (m *Metrics) RecordMedicationOp(op string) {
	m.medicationLock.Lock()
	defer m.medicationLock.Unlock()

	if m.medicationOps[op] == nil {
		m.medicationOps[op] = &atomic.Int64{}
	}
	m.medicationOps[op].Add(1)
}

type Snapshot struct {
	Uptime              time.Duration    `json:"uptime"`
	DosesMarkedTaken    int64            `json:"doses_marked_taken"`
	DosesMarkedSkipped  int64            `json:"doses_marked_skipped"`
	DosesUnmarked       int64            `json:"doses_unmarked"`
	UndosPerformed      int64            `json:"undos_performed"`
	UndosExpired        int64            `json:"undos_expired"`
	MissedSurfaced      int64            `json:"missed_surfaced"`
	RemindersFired      int64            `json:"reminders_fired"`
	RefillAlerts        int64            `json:"refill_alerts"`
	PRNDosesRecorded    int64            `json:"prn_doses_recorded"`
	PRNDosesRejected    int64            `json:"prn_doses_rejected"`
	AdvisoryCalls       int64            `json:"advisory_calls"`
	AdvisoryFailures    int64            `json:"advisory_failures"`
	SnapshotSaves       int64            `json:"snapshot_saves"`
	SnapshotLoadErrors  int64            `json:"snapshot_load_errors"`
	ActiveStreams       int64            `json:"active_streams"`
	MedicationOps       map[string]int64 `json:"medication_ops"`
	AdvisorySuccessRate float64          `json:"advisory_success_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:             time.Since(m.startTime),
		DosesMarkedTaken:   m.dosesMarkedTaken.Load(),
		DosesMarkedSkipped: m.dosesMarkedSkipped.Load(),
		DosesUnmarked:      m.dosesUnmarked.Load(),
		UndosPerformed:     m.undosPerformed.Load(),
		UndosExpired:       m.undosExpired.Load(),
		MissedSurfaced:     m.missedSurfaced.Load(),
		RemindersFired:     m.remindersFired.Load(),
		RefillAlerts:       m.refillAlerts.Load(),
		PRNDosesRecorded:   m.prnDosesRecorded.Load(),
		PRNDosesRejected:   m.prnDosesRejected.Load(),
		AdvisoryCalls:      m.advisoryCalls.Load(),
		AdvisoryFailures:   m.advisoryFailures.Load(),
		SnapshotSaves:      m.snapshotSaves.Load(),
		SnapshotLoadErrors: m.snapshotLoadErrors.Load(),
		ActiveStreams:      m.activeStreams.Load(),
		MedicationOps:      make(map[string]int64),
	}

	if s.AdvisoryCalls > 0 {
		s.AdvisorySuccessRate = float64(s.AdvisoryCalls-s.AdvisoryFailures) / float64(s.AdvisoryCalls) * 100
	}

	m.medicationLock.Lock()
	for k, v := range m.medicationOps {
		s.MedicationOps[k] = v.Load()
	}
	m.medicationLock.Unlock()

	return s
}

func (m *Metrics) Prometheus() string {
	var sb strings.Builder

	counter := func(name, help string, value int64) {
		sb.WriteString("# HELP " + name + " " + help + "\n")
		sb.WriteString("# TYPE " + name + " counter\n")
		sb.WriteString(name + " " + strconv.FormatInt(value, 10) + "\n\n")
	}

	sb.WriteString("# HELP pilltrack_uptime_seconds Time since start\n")
	sb.WriteString("# TYPE pilltrack_uptime_seconds gauge\n")
	sb.WriteString("pilltrack_uptime_seconds " + strconv.FormatInt(int64(time.Since(m.startTime).Seconds()), 10) + "\n\n")

	counter("pilltrack_doses_marked_taken_total", "Doses marked taken", m.dosesMarkedTaken.Load())
	counter("pilltrack_doses_marked_skipped_total", "Doses marked skipped", m.dosesMarkedSkipped.Load())
	counter("pilltrack_doses_unmarked_total", "Dose statuses cleared", m.dosesUnmarked.Load())
	counter("pilltrack_undos_performed_total", "Undo operations applied", m.undosPerformed.Load())
	counter("pilltrack_undos_expired_total", "Undo attempts past the window", m.undosExpired.Load())
	counter("pilltrack_missed_surfaced_total", "Missed doses surfaced to the user", m.missedSurfaced.Load())
	counter("pilltrack_reminders_fired_total", "Dose reminders fired", m.remindersFired.Load())
	counter("pilltrack_refill_alerts_total", "Refill alerts sent", m.refillAlerts.Load())
	counter("pilltrack_prn_doses_recorded_total", "As-needed doses recorded", m.prnDosesRecorded.Load())
	counter("pilltrack_prn_doses_rejected_total", "As-needed doses rejected by safety limits", m.prnDosesRejected.Load())
	counter("pilltrack_advisory_calls_total", "Interaction advisory calls", m.advisoryCalls.Load())
	counter("pilltrack_advisory_failures_total", "Interaction advisory failures", m.advisoryFailures.Load())
	counter("pilltrack_snapshot_saves_total", "Snapshot documents saved", m.snapshotSaves.Load())
	counter("pilltrack_snapshot_load_errors_total", "Snapshot documents that failed to load", m.snapshotLoadErrors.Load())

	sb.WriteString("# HELP pilltrack_active_streams Active reminder streams\n")
	sb.WriteString("# TYPE pilltrack_active_streams gauge\n")
	sb.WriteString("pilltrack_active_streams " + strconv.FormatInt(m.activeStreams.Load(), 10) + "\n\n")

	m.medicationLock.Lock()
	for op, count := range m.medicationOps {
		sb.WriteString("# HELP pilltrack_medication_ops_total Medication operations by type\n")
		sb.WriteString("# TYPE pilltrack_medication_ops_total counter\n")
		sb.WriteString("pilltrack_medication_ops_total{op=\"" + op + "\"} " + strconv.FormatInt(count.Load(), 10) + "\n\n")
	}
	m.medicationLock.Unlock()

	return sb.String()
}

func RecordDoseMarked(status string) {
	Default().RecordDoseMarked(status)
}

func RecordUndo(expired bool) {
	Default().RecordUndo(expired)
}

func RecordMissedSurfaced(count int64) {
	Default().RecordMissedSurfaced(count)
}

func RecordReminderFired() {
	Default().RecordReminderFired()
}

func RecordRefillAlert() {
	Default().RecordRefillAlert()
}

func RecordPRNDose(accepted bool) {
	Default().RecordPRNDose(accepted)
}

func RecordAdvisoryCall(success bool) {
	Default().RecordAdvisoryCall(success)
}

func RecordSnapshotSave() {
	Default().RecordSnapshotSave()
}

func RecordSnapshotLoadError() {
	Default().RecordSnapshotLoadError()
}

func RecordMedicationOp(op string) {
	Default().RecordMedicationOp(op)
}
