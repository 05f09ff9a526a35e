package medication

import (
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/pilltrack/pilltrack/internal/errors"
	"github.com/pilltrack/pilltrack/internal/metrics"
	"github.com/pilltrack/pilltrack/internal/store"
	"go.uber.org/zap"
)

const (
	medicationsDoc = "medications"
	undoWindow     = 5 * time.Second
)

// Service owns the medication collection. All mutations go through it and
// each one is written back to the snapshot store before returning.
type Service struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	meds    []*Medication
	undo    *undoRecord
	scanned bool

	adaptive           ReminderStrategy
	onCollectionChange func()
}

// undoRecord captures the state needed to reverse the last ledger mutation
type undoRecord struct {
	medID   string
	key     string
	prev    *DoseStatus // nil = key was absent
	prevQty *int
	expires time.Time
}

// NewService loads the medication collection from the store
func NewService(st *store.Store, logger *zap.Logger) (*Service, error) {
	s := &Service{
		store:    st,
		logger:   logger,
		now:      time.Now,
		adaptive: NewAdaptiveStrategy(),
	}

	var meds []*Medication
	if _, err := st.LoadDocument(medicationsDoc, &meds); err != nil {
		return nil, err
	}
	s.meds = meds

	return s, nil
}

// OnCollectionChange registers a hook fired after the set of medications
// changes (add, edit, delete). Used to refresh the interaction advisory.
func (s *Service) OnCollectionChange(fn func()) {
	s.mu.Lock()
	s.onCollectionChange = fn
	s.mu.Unlock()
}

// List returns a deep copy of the current medication collection. Copies keep
// readers (reports, classification, reminder ticks) off the maps mutated
// under mu.
func (s *Service) List() []*Medication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Get returns a deep copy of one medication by ID
func (s *Service) Get(id string) (*Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	med := s.findLocked(id)
	if med == nil {
		return nil, apperrors.ErrMedicationNotFound
	}
	return med.clone(), nil
}

// Add inserts a new medication into the collection
func (s *Service) Add(med *Medication) error {
	if med.Name == "" || med.Dosage == "" {
		return apperrors.ErrMedicationInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if med.ID == "" {
		med.ID = uuid.NewString()
	}
	now := s.now()
	med.CreatedAt = now
	med.UpdatedAt = now
	if med.DoseStatus == nil {
		med.DoseStatus = make(map[string]DoseStatus)
	}

	s.meds = append(s.meds, med.clone())
	if err := s.persistLocked(); err != nil {
		s.meds = s.meds[:len(s.meds)-1]
		return err
	}

	s.audit("add", med.ID, "Added "+med.Name)
	metrics.RecordMedicationOp("add")
	s.fireCollectionChangeLocked()

	s.logger.Info("medication added", zap.String("id", med.ID), zap.String("name", med.Name))
	return nil
}

// Update replaces an existing medication's definition
func (s *Service) Update(med *Medication) error {
	if med.Name == "" || med.Dosage == "" {
		return apperrors.ErrMedicationInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.meds {
		if existing.ID == med.ID {
			med.CreatedAt = existing.CreatedAt
			med.UpdatedAt = s.now()
			if med.DoseStatus == nil {
				med.DoseStatus = existing.DoseStatus
			}
			if med.MissedReasons == nil {
				med.MissedReasons = existing.MissedReasons
			}
			s.meds[i] = med.clone()

			if err := s.persistLocked(); err != nil {
				s.meds[i] = existing
				return err
			}

			s.audit("edit", med.ID, "Updated "+med.Name)
			metrics.RecordMedicationOp("edit")
			s.fireCollectionChangeLocked()
			return nil
		}
	}

	return apperrors.ErrMedicationNotFound
}

// Delete removes a medication from the collection
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, med := range s.meds {
		if med.ID == id {
			s.meds = append(s.meds[:i:i], s.meds[i+1:]...)
			if err := s.persistLocked(); err != nil {
				return err
			}

			if s.undo != nil && s.undo.medID == id {
				s.undo = nil
			}

			s.audit("delete", id, "Deleted "+med.Name)
			metrics.RecordMedicationOp("delete")
			s.fireCollectionChangeLocked()
			return nil
		}
	}

	return apperrors.ErrMedicationNotFound
}

// SetDoseStatus records, changes, or clears (status == nil) the ledger entry
// for one occurrence. Quantity moves by exactly one on transitions into and
// out of taken; repeated identical sets are no-ops.
func (s *Service) SetDoseStatus(id, date, clock string, status *DoseStatus) error {
	if status != nil && *status != StatusTaken && *status != StatusSkipped {
		return apperrors.ErrInvalidDoseStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	med := s.findLocked(id)
	if med == nil {
		return apperrors.ErrMedicationNotFound
	}

	key := date + "T" + clock
	prev, had := med.StatusFor(key)

	// Idempotent cases: no ledger change, no quantity change, undo untouched
	if had && status != nil && *status == prev {
		return nil
	}
	if !had && status == nil {
		return nil
	}

	var prevPtr *DoseStatus
	if had {
		p := prev
		prevPtr = &p
	}
	prevQty := copyInt(med.Quantity)

	if med.Quantity != nil {
		wasTaken := had && prev == StatusTaken
		isTaken := status != nil && *status == StatusTaken
		if isTaken && !wasTaken {
			q := *med.Quantity - 1
			med.Quantity = &q
		} else if wasTaken && !isTaken {
			q := *med.Quantity + 1
			med.Quantity = &q
		}
	}

	if med.DoseStatus == nil {
		med.DoseStatus = make(map[string]DoseStatus)
	}
	if status == nil {
		delete(med.DoseStatus, key)
	} else {
		med.DoseStatus[key] = *status
	}
	med.UpdatedAt = s.now()

	if err := s.persistLocked(); err != nil {
		if status == nil {
			med.DoseStatus[key] = prev
		} else if prevPtr == nil {
			delete(med.DoseStatus, key)
		} else {
			med.DoseStatus[key] = *prevPtr
		}
		med.Quantity = prevQty
		return err
	}

	// Any new mutation supersedes the previous undo
	s.undo = &undoRecord{
		medID:   id,
		key:     key,
		prev:    prevPtr,
		prevQty: prevQty,
		expires: s.now().Add(undoWindow),
	}

	label := ""
	if status != nil {
		label = string(*status)
	}
	metrics.RecordDoseMarked(label)
	s.audit("dose_status", id, key+" -> "+label)

	if status != nil && *status == StatusTaken {
		s.recordResponse(med, date, clock)
	}
	return nil
}

// recordResponse feeds the lateness of a same-day taken mark for a scheduled
// slot into the adaptive strategy. Backfilling history says nothing about
// reminder responsiveness, so other dates are ignored.
func (s *Service) recordResponse(med *Medication, date, clock string) {
	acted := s.now()
	if date != DateKey(acted) {
		return
	}

	prefs, err := s.Preferences()
	if err != nil || !prefs.AdaptiveReminders {
		return
	}

	day, err := time.ParseInLocation("2006-01-02", date, acted.Location())
	if err != nil {
		return
	}

	for _, occ := range OccurrencesOn(med, day) {
		if occ.Time != clock {
			continue
		}
		if err := s.RecordDoseResponse(med.ID, clock, occ.Instant(acted.Location()), acted, s.adaptive); err != nil {
			s.logger.Warn("failed to record dose response", zap.String("id", med.ID), zap.Error(err))
		}
		return
	}
}

// Undo reverses the most recent ledger mutation. Valid for a short window
// after the mutation; past it the operation is unavailable.
func (s *Service) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.undo
	if u == nil || s.now().After(u.expires) {
		metrics.RecordUndo(true)
		return apperrors.ErrUndoExpired
	}
	s.undo = nil

	med := s.findLocked(u.medID)
	if med == nil {
		return apperrors.ErrMedicationNotFound
	}

	if u.prev == nil {
		delete(med.DoseStatus, u.key)
	} else {
		if med.DoseStatus == nil {
			med.DoseStatus = make(map[string]DoseStatus)
		}
		med.DoseStatus[u.key] = *u.prev
	}
	med.Quantity = u.prevQty
	med.UpdatedAt = s.now()

	if err := s.persistLocked(); err != nil {
		return err
	}

	metrics.RecordUndo(false)
	s.audit("undo", u.medID, "Reverted "+u.key)
	return nil
}

// LogRefill overwrites the quantity with a user-supplied count, appends
// today to the refill history, and clears the refill-notified latch
func (s *Service) LogRefill(id string, quantity int) error {
	if quantity < 0 {
		return apperrors.ErrInvalidRefillQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	med := s.findLocked(id)
	if med == nil {
		return apperrors.ErrMedicationNotFound
	}

	prevQty := copyInt(med.Quantity)
	prevNotified := med.RefillNotified
	prevHistLen := len(med.RefillHistory)

	q := quantity
	med.Quantity = &q
	med.RefillHistory = append(med.RefillHistory, DateKey(s.now()))
	med.RefillNotified = false
	med.UpdatedAt = s.now()

	if err := s.persistLocked(); err != nil {
		med.Quantity = prevQty
		med.RefillNotified = prevNotified
		med.RefillHistory = med.RefillHistory[:prevHistLen]
		return err
	}

	s.undo = nil
	if err := s.store.RecordRefill(id, quantity); err != nil {
		s.logger.Warn("failed to record refill event", zap.Error(err))
	}
	s.audit("refill", id, "Refilled "+med.Name)
	return nil
}

// SaveMissedDoseReasons merges free-text reasons keyed like ledger entries.
// A reason does not change the dose's classification.
func (s *Service) SaveMissedDoseReasons(id string, reasons map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	med := s.findLocked(id)
	if med == nil {
		return apperrors.ErrMedicationNotFound
	}

	if med.MissedReasons == nil {
		med.MissedReasons = make(map[string]string)
	}
	for key, reason := range reasons {
		med.MissedReasons[key] = reason
	}
	med.UpdatedAt = s.now()

	return s.persistLocked()
}

// MarkRefillNotified latches the refill alert so it fires once per cycle
func (s *Service) MarkRefillNotified(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	med := s.findLocked(id)
	if med == nil {
		return apperrors.ErrMedicationNotFound
	}
	if med.RefillNotified {
		return nil
	}

	med.RefillNotified = true
	return s.persistLocked()
}

// snapshotLocked deep-copies the collection. Caller holds mu.
func (s *Service) snapshotLocked() []*Medication {
	out := make([]*Medication, len(s.meds))
	for i, med := range s.meds {
		out[i] = med.clone()
	}
	return out
}

// findLocked returns the medication with the given ID, or nil. Caller holds mu.
func (s *Service) findLocked(id string) *Medication {
	for _, med := range s.meds {
		if med.ID == id {
			return med
		}
	}
	return nil
}

func (s *Service) persistLocked() error {
	return s.store.SaveDocument(medicationsDoc, s.meds)
}

func (s *Service) fireCollectionChangeLocked() {
	if s.onCollectionChange != nil {
		go s.onCollectionChange()
	}
}

func (s *Service) audit(action, subject, detail string) {
	if err := s.store.RecordAudit(action, subject, detail); err != nil {
		s.logger.Warn("failed to record audit entry", zap.Error(err))
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
