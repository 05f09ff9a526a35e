package store

import (
	"crypto/rand"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// AuditEntry records an access-history event (medication added, dose marked,
// data exported). It is append-only.
type AuditEntry struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Action    string    `gorm:"index" json:"action"` // add, edit, delete, dose_status, refill, export, login
	Subject   string    `json:"subject"`             // medication ID or name
	Detail    string    `json:"detail" gorm:"type:text"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// RefillEvent records a logged refill for a medication
type RefillEvent struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	MedicationID string    `gorm:"index" json:"medication_id"`
	Quantity     int       `json:"quantity"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate hook for AuditEntry
func (a *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = generateID("audit")
	}
	return nil
}

// BeforeCreate hook for RefillEvent
func (r *RefillEvent) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateID("refill")
	}
	return nil
}

// generateID creates a unique ID with nanosecond precision
func generateID(prefix string) string {
	return prefix + "_" + time.Now().Format("20060102150405") + "_" + randomString(8)
}

// randomString generates a cryptographically secure random string
func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}

// ToJSON converts struct to JSON bytes
func ToJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// FromJSON parses JSON bytes into struct
func FromJSON(data json.RawMessage, v interface{}) error {
	return json.Unmarshal(data, v)
}
