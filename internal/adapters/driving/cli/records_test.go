package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// mockRecordService implements driving.RecordService for testing.
type mockRecordService struct {
	records []domain.StoredRecord
	err     error
}

func (m *mockRecordService) Get(_ context.Context, id string) (*domain.StoredRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.records {
		if m.records[i].Record.ID() == id {
			return &m.records[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRecordService) List(_ context.Context) ([]domain.StoredRecord, error) {
	return m.records, m.err
}

func (m *mockRecordService) Info(_ context.Context) (*domain.CollectionInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.CollectionInfo{Name: "node", Records: len(m.records)}, nil
}

func setupRecordsTest(svc *mockRecordService) func() {
	old := recordService
	recordService = svc
	return func() { recordService = old }
}

func sampleRecords() []domain.StoredRecord {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []domain.StoredRecord{
		{Record: domain.Record{"id": "a", "title": "Alpha"}, Rev: "1-x", UpdatedAt: at},
		{Record: domain.Record{"id": "b", "title": "Beta"}, Rev: "2-y", UpdatedAt: at},
	}
}

func TestRecordsList(t *testing.T) {
	defer setupRecordsTest(&mockRecordService{records: sampleRecords()})()

	out, err := runRoot(t, "", "records", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "Collection node: 2 records")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "Beta")
}

func TestRecordsList_Limit(t *testing.T) {
	defer setupRecordsTest(&mockRecordService{records: sampleRecords()})()
	defer func() { _ = recordsListCmd.Flags().Set("limit", "0") }()

	out, err := runRoot(t, "", "records", "list", "-n", "1")

	require.NoError(t, err)
	assert.Contains(t, out, "Alpha")
	assert.NotContains(t, out, "Beta")
}

func TestRecordsGet(t *testing.T) {
	defer setupRecordsTest(&mockRecordService{records: sampleRecords()})()

	out, err := runRoot(t, "", "records", "get", "b")

	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Beta"`)
}

func TestRecordsGet_NotFound(t *testing.T) {
	defer setupRecordsTest(&mockRecordService{records: sampleRecords()})()

	_, err := runRoot(t, "", "records", "get", "zz")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "record zz not found")
}

func TestRecordsList_Error(t *testing.T) {
	defer setupRecordsTest(&mockRecordService{err: domain.ErrStorageUnknown})()

	_, err := runRoot(t, "", "records", "list")

	assert.ErrorIs(t, err, domain.ErrStorageUnknown)
}

func TestRecords_NotConfigured(t *testing.T) {
	old := recordService
	recordService = nil
	defer func() { recordService = old }()

	_, err := runRoot(t, "", "records", "get", "a")
	assert.Error(t, err)
}

func TestDashboard_RequiresTerminal(t *testing.T) {
	oldSync := syncEngine
	syncEngine = &mockSyncEngine{}
	defer func() { syncEngine = oldSync }()
	defer setupRecordsTest(&mockRecordService{})()

	_, err := runRoot(t, "", "dashboard")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "interactive terminal")
}
