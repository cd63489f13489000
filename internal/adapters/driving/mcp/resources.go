package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/larder/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for larder resources.
	uriScheme = "larder://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource describing the collection.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "collection",
		Name:        "collection",
		Description: "The local collection and its record ids",
		MIMEType:    "application/json",
	}, s.handleCollectionResource)

	// Template for a single record.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "records/{recordId}",
		Name:        "record",
		Description: "A stored record as JSON",
		MIMEType:    "application/json",
	}, s.handleRecordResource)
}

// handleCollectionResource returns the collection summary.
func (s *Server) handleCollectionResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	info, err := s.ports.Records.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading collection: %w", err)
	}
	records, err := s.ports.Records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	type collectionInfo struct {
		Name    string   `json:"name"`
		Records int      `json:"records"`
		IDs     []string `json:"ids"`
	}

	out := collectionInfo{Name: info.Name, Records: info.Records, IDs: make([]string, len(records))}
	for i := range records {
		out.IDs[i] = records[i].Record.ID()
	}

	return jsonResult(req.Params.URI, out)
}

// handleRecordResource returns one record body.
func (s *Server) handleRecordResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract recordId from URI: larder://records/{recordId}
	id := extractRecordID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	rec, err := s.ports.Records.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}

	return jsonResult(req.Params.URI, rec.Record)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractRecordID extracts the record ID from a URI like larder://records/{recordId}.
func extractRecordID(uri string) string {
	const prefix = uriScheme + "records/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
