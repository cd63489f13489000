// Package mcp provides an MCP (Model Context Protocol) server adapter for larder.
// It lets assistants read the offline collection, trigger a refresh and
// inspect cache generations.
package mcp

import "errors"

// ErrMissingRecordService is returned when the record service is not provided.
var ErrMissingRecordService = errors.New("mcp: record service is required")

// ErrUnavailable is returned by tools whose backing service was not wired.
var ErrUnavailable = errors.New("mcp: service not available")
