package medication

import (
	"time"

	apperrors "github.com/pilltrack/pilltrack/internal/errors"
	"github.com/pilltrack/pilltrack/internal/metrics"
)

const prnDoc = "prn"

// PRNConfig holds the safety limits for an as-needed medication and the
// record of doses taken against them
type PRNConfig struct {
	MedicationID     string      `json:"medication_id"`
	MinIntervalHours int         `json:"min_interval_hours"`
	MaxPerDay        int         `json:"max_per_day"`
	Doses            []time.Time `json:"doses,omitempty"`
}

// canTake checks the interval and daily-cap limits against now
func (p *PRNConfig) canTake(now time.Time) error {
	if len(p.Doses) > 0 && p.MinIntervalHours > 0 {
		last := p.Doses[len(p.Doses)-1]
		if now.Sub(last) < time.Duration(p.MinIntervalHours)*time.Hour {
			return apperrors.ErrPRNTooSoon
		}
	}

	if p.MaxPerDay > 0 {
		today := DateKey(now)
		count := 0
		for _, d := range p.Doses {
			if DateKey(d) == today {
				count++
			}
		}
		if count >= p.MaxPerDay {
			return apperrors.ErrPRNDailyLimit
		}
	}

	return nil
}

// ConfigurePRN sets the as-needed limits for a medication
func (s *Service) ConfigurePRN(cfg PRNConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(cfg.MedicationID) == nil {
		return apperrors.ErrMedicationNotFound
	}

	configs, err := s.loadPRNLocked()
	if err != nil {
		return err
	}

	if existing, ok := configs[cfg.MedicationID]; ok {
		cfg.Doses = existing.Doses
	}
	configs[cfg.MedicationID] = &cfg

	return s.store.SaveDocument(prnDoc, configs)
}

// PRNConfigFor returns the as-needed configuration for a medication
func (s *Service) PRNConfigFor(medID string) (*PRNConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configs, err := s.loadPRNLocked()
	if err != nil {
		return nil, err
	}

	cfg, ok := configs[medID]
	if !ok {
		return nil, apperrors.ErrPRNNotConfigured
	}
	return cfg, nil
}

// TakePRN records an as-needed dose if the safety limits allow it, and
// decrements the medication's quantity like a scheduled taken dose
func (s *Service) TakePRN(medID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	med := s.findLocked(medID)
	if med == nil {
		return apperrors.ErrMedicationNotFound
	}

	configs, err := s.loadPRNLocked()
	if err != nil {
		return err
	}
	cfg, ok := configs[medID]
	if !ok {
		return apperrors.ErrPRNNotConfigured
	}

	now := s.now()
	if err := cfg.canTake(now); err != nil {
		metrics.RecordPRNDose(false)
		return err
	}

	cfg.Doses = append(cfg.Doses, now)
	if err := s.store.SaveDocument(prnDoc, configs); err != nil {
		cfg.Doses = cfg.Doses[:len(cfg.Doses)-1]
		return err
	}

	if med.Quantity != nil {
		q := *med.Quantity - 1
		med.Quantity = &q
		med.UpdatedAt = now
		if err := s.persistLocked(); err != nil {
			return err
		}
	}

	metrics.RecordPRNDose(true)
	s.audit("prn_dose", medID, "As-needed dose of "+med.Name)
	return nil
}

func (s *Service) loadPRNLocked() (map[string]*PRNConfig, error) {
	configs := make(map[string]*PRNConfig)
	if _, err := s.store.LoadDocument(prnDoc, &configs); err != nil {
		return nil, err
	}
	if configs == nil {
		configs = make(map[string]*PRNConfig)
	}
	return configs, nil
}
