package notify

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pilltrack/pilltrack/internal/medication"
	"github.com/pilltrack/pilltrack/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler drives the two recurring checks: a minute tick that compares the
// wall clock against strategy-adjusted dose times, and a daily refill check.
type Scheduler struct {
	svc      *medication.Service
	adaptive medication.ReminderStrategy
	fixed    medication.ReminderStrategy
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	refillSpec string

	cron    *cron.Cron
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	running bool
}

// NewScheduler creates a scheduler. refillCheckTime is HH:MM.
func NewScheduler(svc *medication.Service, notifier Notifier, logger *zap.Logger, refillCheckTime string) *Scheduler {
	return &Scheduler{
		svc:        svc,
		adaptive:   medication.NewAdaptiveStrategy(),
		fixed:      medication.FixedStrategy{},
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
		refillSpec: refillCronSpec(refillCheckTime),
		subs:       make(map[chan Event]struct{}),
	}
}

// Start registers the cron entries and begins ticking
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc("* * * * *", s.doseTick); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.refillSpec, s.refillCheck); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("reminder scheduler started", zap.String("refill_check", s.refillSpec))
	return nil
}

// Stop halts the cron entries and waits for in-flight jobs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("reminder scheduler stopped")
}

// Subscribe returns a channel receiving every emitted event. Slow consumers
// drop events rather than block the tick.
func (s *Scheduler) Subscribe() chan Event {
	ch := make(chan Event, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	metrics.Default().IncrementActiveStreams()
	return ch
}

// Unsubscribe removes and closes a subscription channel
func (s *Scheduler) Unsubscribe(ch chan Event) {
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
		metrics.Default().DecrementActiveStreams()
	}
	s.mu.Unlock()
}

// doseTick fires reminders for occurrences due this minute with no status
func (s *Scheduler) doseTick() {
	prefs, err := s.svc.Preferences()
	if err != nil {
		s.logger.Warn("failed to load preferences", zap.Error(err))
	}
	if !prefs.RemindersEnabled {
		return
	}

	strategy := s.fixed
	if prefs.AdaptiveReminders {
		strategy = s.adaptive
	}

	now := s.now()
	for _, occ := range s.svc.DueAt(now, strategy) {
		event := Event{
			Type:         "dose_reminder",
			MedicationID: occ.MedicationID,
			Name:         occ.Name,
			Time:         occ.Time,
			Message:      fmt.Sprintf("Time to take %s (%s)", occ.Name, occ.DosageLabel),
			At:           now,
		}
		s.emit(event)
		metrics.RecordReminderFired()
	}
}

// refillCheck alerts once per cycle for each medication at or below its
// refill threshold
func (s *Scheduler) refillCheck() {
	prefs, err := s.svc.Preferences()
	if err != nil {
		s.logger.Warn("failed to load preferences", zap.Error(err))
	}
	if !prefs.RefillAlerts {
		return
	}

	now := s.now()
	for _, med := range s.svc.List() {
		if !med.RefillNeeded() || med.RefillNotified {
			continue
		}

		s.emit(Event{
			Type:         "refill_alert",
			MedicationID: med.ID,
			Name:         med.Name,
			Message:      fmt.Sprintf("%s is running low (%d left) - time to refill", med.Name, *med.Quantity),
			At:           now,
		})
		metrics.RecordRefillAlert()

		if err := s.svc.MarkRefillNotified(med.ID); err != nil {
			s.logger.Warn("failed to latch refill alert", zap.String("id", med.ID), zap.Error(err))
		}
	}
}

func (s *Scheduler) emit(event Event) {
	if err := s.notifier.Notify(event); err != nil {
		s.logger.Warn("notification delivery failed", zap.Error(err))
	}

	s.mu.Lock()
	for ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
	s.mu.Unlock()
}

// refillCronSpec converts HH:MM into a daily cron spec, defaulting to 09:00
func refillCronSpec(clock string) string {
	parts := strings.Split(clock, ":")
	if len(parts) == 2 {
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		if err1 == nil && err2 == nil && h >= 0 && h <= 23 && m >= 0 && m <= 59 {
			return fmt.Sprintf("%d %d * * *", m, h)
		}
	}
	return "0 9 * * *"
}
