package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
)

// mockRecordService is a mock implementation of driving.RecordService.
type mockRecordService struct {
	records []domain.StoredRecord
	info    *domain.CollectionInfo
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
	if m.info != nil {
		return m.info, nil
	}
	return &domain.CollectionInfo{Name: "node", Records: len(m.records)}, nil
}

// mockSyncEngine is a mock implementation of driving.SyncEngine.
type mockSyncEngine struct {
	result      *domain.SyncResult
	err         error
	lastSync    time.Time
	fullCalls   int
	incremental int
}

func (m *mockSyncEngine) Start(_ context.Context) (*domain.CollectionInfo, error) {
	return &domain.CollectionInfo{Name: "node"}, m.err
}

func (m *mockSyncEngine) Refresh(_ context.Context, _ time.Time) (*domain.SyncResult, error) {
	m.fullCalls++
	return m.result, m.err
}

func (m *mockSyncEngine) LastSync(_ context.Context) (time.Time, error) {
	return m.lastSync, nil
}

func (m *mockSyncEngine) RefreshIncremental(_ context.Context) (*domain.SyncResult, error) {
	m.incremental++
	return m.result, m.err
}

func (m *mockSyncEngine) Wait(_ context.Context) error {
	return nil
}

func (m *mockSyncEngine) Status() driving.SyncStatus {
	return driving.SyncStatus{Collection: "node", LastSync: m.lastSync}
}

// mockVersions is a mock implementation of driving.CacheVersionManager.
type mockVersions struct {
	gens []domain.GenerationInfo
	err  error
}

func (m *mockVersions) Name() string { return "larder-cache-v2" }

func (m *mockVersions) Install(_ context.Context) (*domain.InstallReport, error) {
	return &domain.InstallReport{Generation: m.Name()}, m.err
}

func (m *mockVersions) Activate(_ context.Context) ([]string, error) {
	return nil, m.err
}

func (m *mockVersions) Current(_ context.Context) (driven.Cache, error) {
	return nil, m.err
}

func (m *mockVersions) Generations(_ context.Context) ([]domain.GenerationInfo, error) {
	return m.gens, m.err
}

// mockLifecycle is a mock implementation of driving.CacheLifecycle.
type mockLifecycle struct {
	versions *mockVersions
	active   string
	err      error
}

func (m *mockLifecycle) Apply(_ context.Context) (*domain.InstallReport, []string, error) {
	return nil, nil, m.err
}

func (m *mockLifecycle) Versions() (driving.CacheVersionManager, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.versions, nil
}

func (m *mockLifecycle) Active() string {
	return m.active
}

func storedRecord(id string, fields map[string]any) domain.StoredRecord {
	rec := domain.Record{"id": id}
	for k, v := range fields {
		rec[k] = v
	}
	return domain.StoredRecord{
		Record:    rec,
		Rev:       "1-abc",
		UpdatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}
