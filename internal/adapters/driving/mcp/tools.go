package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// RefreshInput is the input schema for the refresh tool.
type RefreshInput struct {
	Full bool `json:"full,omitempty" jsonschema:"fetch every item instead of only those changed since the last sync"`
}

// RefreshOutput is the output schema for the refresh tool.
type RefreshOutput struct {
	Inserted  int    `json:"inserted"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
	LastSync  string `json:"last_sync,omitempty"`
}

// GetRecordInput is the input schema for the get_record tool.
type GetRecordInput struct {
	ID string `json:"id" jsonschema:"the record id"`
}

// RecordOutput is a stored record.
type RecordOutput struct {
	ID        string         `json:"id"`
	Rev       string         `json:"rev"`
	UpdatedAt string         `json:"updated_at,omitempty"`
	Body      map[string]any `json:"body"`
}

// ListRecordsInput is the input schema for the list_records tool.
type ListRecordsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of records to return (default 50)"`
}

// ListRecordsOutput is the output schema for the list_records tool.
type ListRecordsOutput struct {
	Records []RecordOutput `json:"records"`
	Count   int            `json:"count"`
	Total   int            `json:"total"`
}

// CacheStatusInput is the (empty) input schema for the cache_status tool.
type CacheStatusInput struct{}

// GenerationOutput describes one cache generation.
type GenerationOutput struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
}

// CacheStatusOutput is the output schema for the cache_status tool.
type CacheStatusOutput struct {
	Active      string             `json:"active,omitempty"`
	Generations []GenerationOutput `json:"generations"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "refresh",
		Description: "Pull changed records from the remote feed into the local collection",
	}, s.handleRefresh)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_record",
		Description: "Read one record from the local collection",
	}, s.handleGetRecord)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_records",
		Description: "List records in the local collection",
	}, s.handleListRecords)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cache_status",
		Description: "Show the response cache generations",
	}, s.handleCacheStatus)
}

// handleRefresh handles the refresh tool invocation.
func (s *Server) handleRefresh(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RefreshInput,
) (*mcp.CallToolResult, RefreshOutput, error) {
	if s.ports.Sync == nil {
		return nil, RefreshOutput{}, ErrUnavailable
	}

	var (
		result *domain.SyncResult
		err    error
	)
	if input.Full {
		result, err = s.ports.Sync.Refresh(ctx, time.Time{})
	} else {
		result, err = s.ports.Sync.RefreshIncremental(ctx)
	}
	if err != nil {
		return nil, RefreshOutput{}, err
	}

	output := RefreshOutput{
		Inserted:  result.Inserted,
		Updated:   result.Updated,
		Unchanged: result.Unchanged,
		Failed:    result.Failed,
	}
	if last := s.ports.Sync.Status().LastSync; !last.IsZero() {
		output.LastSync = last.UTC().Format(time.RFC3339)
	}
	return nil, output, nil
}

// handleGetRecord handles the get_record tool invocation.
func (s *Server) handleGetRecord(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetRecordInput,
) (*mcp.CallToolResult, RecordOutput, error) {
	if input.ID == "" {
		return nil, RecordOutput{}, fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}

	rec, err := s.ports.Records.Get(ctx, input.ID)
	if err != nil {
		return nil, RecordOutput{}, err
	}
	return nil, toRecordOutput(rec), nil
}

// handleListRecords handles the list_records tool invocation.
func (s *Server) handleListRecords(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListRecordsInput,
) (*mcp.CallToolResult, ListRecordsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	records, err := s.ports.Records.List(ctx)
	if err != nil {
		return nil, ListRecordsOutput{}, err
	}

	output := ListRecordsOutput{Total: len(records)}
	if len(records) > limit {
		records = records[:limit]
	}
	output.Records = make([]RecordOutput, len(records))
	for i := range records {
		output.Records[i] = toRecordOutput(&records[i])
	}
	output.Count = len(output.Records)
	return nil, output, nil
}

// handleCacheStatus handles the cache_status tool invocation.
func (s *Server) handleCacheStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ CacheStatusInput,
) (*mcp.CallToolResult, CacheStatusOutput, error) {
	if s.ports.Cache == nil {
		return nil, CacheStatusOutput{}, ErrUnavailable
	}

	versions, err := s.ports.Cache.Versions()
	if err != nil {
		return nil, CacheStatusOutput{}, err
	}
	gens, err := versions.Generations(ctx)
	if err != nil {
		return nil, CacheStatusOutput{}, err
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].Name < gens[j].Name })

	output := CacheStatusOutput{
		Active:      s.ports.Cache.Active(),
		Generations: make([]GenerationOutput, len(gens)),
	}
	for i, g := range gens {
		output.Generations[i] = GenerationOutput{Name: g.Name, Entries: g.Entries, Current: g.Current}
	}
	return nil, output, nil
}

func toRecordOutput(rec *domain.StoredRecord) RecordOutput {
	out := RecordOutput{
		ID:   rec.Record.ID(),
		Rev:  rec.Rev,
		Body: rec.Record,
	}
	if !rec.UpdatedAt.IsZero() {
		out.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}
