package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	apperrors "github.com/pilltrack/pilltrack/internal/errors"
	"github.com/pilltrack/pilltrack/internal/export"
	"github.com/pilltrack/pilltrack/internal/medication"
	"github.com/pilltrack/pilltrack/internal/metrics"
	"go.uber.org/zap"
)

// errorResponse maps domain error codes onto HTTP statuses
func (s *Server) errorResponse(c *fiber.Ctx, err error) error {
	status := 500
	switch apperrors.GetCode(err) {
	case apperrors.ErrMedicationNotFound.Code, apperrors.ErrNotFound.Code:
		status = 404
	case apperrors.ErrMedicationInvalid.Code,
		apperrors.ErrInvalidDoseStatus.Code,
		apperrors.ErrInvalidRefillQuantity.Code,
		apperrors.ErrBadRequest.Code:
		status = 400
	case apperrors.ErrUndoExpired.Code:
		status = 410
	case apperrors.ErrPRNNotConfigured.Code:
		status = 404
	case apperrors.ErrPRNTooSoon.Code, apperrors.ErrPRNDailyLimit.Code:
		status = 409
	}

	if status == 500 {
		s.logger.Error("request failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": apperrors.GetCode(err)})
}

// ==================== Medications ====================

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	return c.JSON(s.meds.List())
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var med medication.Medication
	if err := c.BodyParser(&med); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if err := s.meds.Add(&med); err != nil {
		return s.errorResponse(c, err)
	}
	return c.Status(201).JSON(med)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, err := s.meds.Get(c.Params("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	var med medication.Medication
	if err := c.BodyParser(&med); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	med.ID = c.Params("id")

	if err := s.meds.Update(&med); err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	if err := s.meds.Delete(c.Params("id")); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(204)
}

// ==================== Doses ====================

type occurrenceView struct {
	medication.Occurrence
	Status medication.Classification `json:"status"`
}

func (s *Server) handleOccurrences(c *fiber.Ctx) error {
	med, err := s.meds.Get(c.Params("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}

	day := time.Now()
	if q := c.Query("date"); q != "" {
		day, err = time.ParseInLocation("2006-01-02", q, time.Local)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "date must be YYYY-MM-DD"})
		}
	}

	policy := medication.StrictPolicy
	if c.Query("policy") == "banner" {
		policy = medication.BannerPolicy
	}

	now := time.Now()
	var views []occurrenceView
	for _, occ := range medication.OccurrencesOn(med, day) {
		views = append(views, occurrenceView{
			Occurrence: occ,
			Status:     medication.Classify(med, occ, now, policy),
		})
	}
	return c.JSON(views)
}

func (s *Server) handleSetDoseStatus(c *fiber.Ctx) error {
	var req struct {
		Date   string  `json:"date"`
		Time   string  `json:"time"`
		Status *string `json:"status"` // "taken", "skipped", or null to clear
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	var status *medication.DoseStatus
	if req.Status != nil {
		v := medication.DoseStatus(*req.Status)
		status = &v
	}

	if err := s.meds.SetDoseStatus(c.Params("id"), req.Date, req.Time, status); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleMissedReasons(c *fiber.Ctx) error {
	var reasons map[string]string
	if err := c.BodyParser(&reasons); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if err := s.meds.SaveMissedDoseReasons(c.Params("id"), reasons); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleUndo(c *fiber.Ctx) error {
	if err := s.meds.Undo(); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleMissedScan(c *fiber.Ctx) error {
	missed := s.meds.SessionScan(time.Now())
	if missed == nil {
		missed = []medication.Occurrence{}
	}
	return c.JSON(missed)
}

// ==================== Refills & PRN ====================

func (s *Server) handleRefill(c *fiber.Ctx) error {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if err := s.meds.LogRefill(c.Params("id"), req.Quantity); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleRefillHistory(c *fiber.Ctx) error {
	events, err := s.store.ListRefills(c.Params("id"), c.QueryInt("limit", 50))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(events)
}

func (s *Server) handleConfigurePRN(c *fiber.Ctx) error {
	var cfg medication.PRNConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	cfg.MedicationID = c.Params("id")

	if err := s.meds.ConfigurePRN(cfg); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleTakePRN(c *fiber.Ctx) error {
	if err := s.meds.TakePRN(c.Params("id")); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(204)
}

// ==================== Reports ====================

func (s *Server) handleAdherence(c *fiber.Ctx) error {
	now := time.Now()
	start, err := queryDate(c, "start", now.AddDate(0, 0, -6))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	end, err := queryDate(c, "end", now)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(medication.Aggregate(s.meds.List(), start, end, now))
}

func (s *Server) handleStreak(c *fiber.Ctx) error {
	return c.JSON(medication.Streak(s.meds.List(), time.Now()))
}

func (s *Server) handleWeeklySummary(c *fiber.Ctx) error {
	now := time.Now()
	weekStart, err := queryDate(c, "week_start", now.AddDate(0, 0, -6))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(medication.WeeklySummary(s.meds.List(), weekStart, now))
}

// ==================== Advisory ====================

func (s *Server) handleInteractions(c *fiber.Ctx) error {
	latest := s.advisor.Latest()
	if latest == nil {
		return c.JSON(fiber.Map{"available": false})
	}
	return c.JSON(fiber.Map{"available": true, "result": latest})
}

// ==================== Snapshots ====================

func (s *Server) handleGetPreferences(c *fiber.Ctx) error {
	prefs, err := s.meds.Preferences()
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(prefs)
}

func (s *Server) handleSetPreferences(c *fiber.Ctx) error {
	var prefs medication.Preferences
	if err := c.BodyParser(&prefs); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if err := s.meds.SetPreferences(prefs); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleListSymptoms(c *fiber.Ctx) error {
	entries, err := s.meds.Symptoms()
	if err != nil {
		return s.errorResponse(c, err)
	}
	if entries == nil {
		entries = []medication.SymptomEntry{}
	}
	return c.JSON(entries)
}

func (s *Server) handleAddSymptom(c *fiber.Ctx) error {
	var entry medication.SymptomEntry
	if err := c.BodyParser(&entry); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if err := s.meds.AddSymptom(entry); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(201)
}

func (s *Server) handleGetEmergency(c *fiber.Ctx) error {
	info, err := s.meds.EmergencyInfo()
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(info)
}

func (s *Server) handleSetEmergency(c *fiber.Ctx) error {
	var info medication.EmergencyInfo
	if err := c.BodyParser(&info); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}
	if err := s.meds.SetEmergencyInfo(info); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(204)
}

// ==================== Export, audit, metrics ====================

func (s *Server) handleExportMedications(c *fiber.Ctx) error {
	data, err := export.MedicationsCSV(s.meds.List())
	if err != nil {
		return s.errorResponse(c, err)
	}

	s.recordExport("medications")
	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", `attachment; filename="medications.csv"`)
	return c.Send(data)
}

func (s *Server) handleExportHistory(c *fiber.Ctx) error {
	data, err := export.DoseHistoryCSV(s.meds.List())
	if err != nil {
		return s.errorResponse(c, err)
	}

	s.recordExport("dose_history")
	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", `attachment; filename="dose_history.csv"`)
	return c.Send(data)
}

func (s *Server) recordExport(what string) {
	if err := s.store.RecordAudit("export", what, "CSV export"); err != nil {
		s.logger.Warn("failed to record export", zap.Error(err))
	}
}

func (s *Server) handleAudit(c *fiber.Ctx) error {
	entries, err := s.store.ListAudit(c.QueryInt("limit", 50))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(entries)
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	if c.Query("format") == "prometheus" {
		c.Set("Content-Type", "text/plain; version=0.0.4")
		return c.SendString(metrics.Default().Prometheus())
	}
	return c.JSON(metrics.Default().Snapshot())
}

func queryDate(c *fiber.Ctx, name string, fallback time.Time) (time.Time, error) {
	q := c.Query(name)
	if q == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation("2006-01-02", q, time.Local)
	if err != nil {
		return time.Time{}, fiber.NewError(400, name+" must be YYYY-MM-DD")
	}
	return t, nil
}
