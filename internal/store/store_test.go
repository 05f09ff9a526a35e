package store

import (
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/pilltrack/pilltrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DataDir:    dir,
			SQLitePath: filepath.Join(dir, "test.db"),
			BadgerPath: filepath.Join(dir, "snapshots"),
		},
	}

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestSaveAndLoadDocument(t *testing.T) {
	s := newTestStore(t)

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, s.SaveDocument("medications", doc{Name: "Aspirin", Count: 30}))

	var got doc
	found, err := s.LoadDocument("medications", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Aspirin", got.Name)
	assert.Equal(t, 30, got.Count)
}

func TestLoadDocument_Absent(t *testing.T) {
	s := newTestStore(t)

	var got map[string]string
	found, err := s.LoadDocument("missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestLoadDocument_Corrupt(t *testing.T) {
	s := newTestStore(t)

	// Write garbage directly under the document key
	err := s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("doc:medications"), []byte("{not json"))
	})
	require.NoError(t, err)

	var got []string
	found, loadErr := s.LoadDocument("medications", &got)
	require.NoError(t, loadErr)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveDocument("preferences", map[string]bool{"adaptive": true}))
	require.NoError(t, s.DeleteDocument("preferences"))

	var got map[string]bool
	found, err := s.LoadDocument("preferences", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListDocuments(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveDocument("behavior:med1", map[string]int{"late": 2}))
	require.NoError(t, s.SaveDocument("behavior:med2", map[string]int{"late": 0}))
	require.NoError(t, s.SaveDocument("medications", []string{}))

	names, err := s.ListDocuments("behavior:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"behavior:med1", "behavior:med2"}, names)
}

func TestRecordAndListAudit(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordAudit("add", "med1", "Added Aspirin"))
	require.NoError(t, s.RecordAudit("dose_status", "med1", "Marked taken"))

	entries, err := s.ListAudit(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ID)
}

func TestRecordAndListRefills(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordRefill("med1", 30))
	require.NoError(t, s.RecordRefill("med1", 60))
	require.NoError(t, s.RecordRefill("med2", 10))

	events, err := s.ListRefills("med1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "med1", e.MedicationID)
	}
}
