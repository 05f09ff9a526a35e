package medication

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot documents that ride alongside the medication collection. The
// service just round-trips them; nothing downstream derives state from them.

const (
	symptomsDoc    = "symptoms"
	emergencyDoc   = "emergency"
	preferencesDoc = "preferences"
)

// SymptomEntry is one journal entry
type SymptomEntry struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Severity    int       `json:"severity"` // 1-10
	RecordedAt  time.Time `json:"recorded_at"`
}

// EmergencyInfo is the user's emergency card
type EmergencyInfo struct {
	BloodType  string   `json:"blood_type,omitempty"`
	Allergies  []string `json:"allergies,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	Contacts   []string `json:"contacts,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// Preferences are user-facing toggles consumed by the reminder scheduler
type Preferences struct {
	RemindersEnabled  bool `json:"reminders_enabled"`
	AdaptiveReminders bool `json:"adaptive_reminders"`
	RefillAlerts      bool `json:"refill_alerts"`
}

// DefaultPreferences is what a fresh install behaves like
func DefaultPreferences() Preferences {
	return Preferences{RemindersEnabled: true, AdaptiveReminders: true, RefillAlerts: true}
}

// Symptoms returns the journal, newest last
func (s *Service) Symptoms() ([]SymptomEntry, error) {
	var entries []SymptomEntry
	if _, err := s.store.LoadDocument(symptomsDoc, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AddSymptom appends a journal entry
func (s *Service) AddSymptom(entry SymptomEntry) error {
	entries, err := s.Symptoms()
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = s.now()
	}

	return s.store.SaveDocument(symptomsDoc, append(entries, entry))
}

// EmergencyInfo returns the stored emergency card, empty when unset
func (s *Service) EmergencyInfo() (EmergencyInfo, error) {
	var info EmergencyInfo
	_, err := s.store.LoadDocument(emergencyDoc, &info)
	return info, err
}

// SetEmergencyInfo replaces the emergency card
func (s *Service) SetEmergencyInfo(info EmergencyInfo) error {
	return s.store.SaveDocument(emergencyDoc, info)
}

// Preferences returns the stored preferences, defaults when unset
func (s *Service) Preferences() (Preferences, error) {
	prefs := DefaultPreferences()
	found, err := s.store.LoadDocument(preferencesDoc, &prefs)
	if err != nil {
		return prefs, err
	}
	if !found {
		return DefaultPreferences(), nil
	}
	return prefs, nil
}

// EnsurePreferences seeds the preferences document when none exists yet,
// letting configuration set the initial toggles. Stored preferences are
// never overwritten.
func (s *Service) EnsurePreferences(defaults Preferences) error {
	var stored Preferences
	found, err := s.store.LoadDocument(preferencesDoc, &stored)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return s.store.SaveDocument(preferencesDoc, defaults)
}

// SetPreferences replaces the stored preferences
func (s *Service) SetPreferences(prefs Preferences) error {
	return s.store.SaveDocument(preferencesDoc, prefs)
}
