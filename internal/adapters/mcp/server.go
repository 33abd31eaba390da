// Package mcpadapter exposes read-only archive tools over the Model Context Protocol.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

const (
	ServerName    = "records-archive"
	ServerVersion = "1.0.0"

	defaultSearchLimit = 20
	maxSearchLimit     = 200
)

// StatusFunc reports the last known sync state.
type StatusFunc func() domain.BatchProgress

type Tools struct {
	reader ports.ArchiveReader
	status StatusFunc
	now    func() time.Time
}

func NewTools(reader ports.ArchiveReader, status StatusFunc) *Tools {
	return &Tools{reader: reader, status: status, now: time.Now}
}

// NewServer registers every archive tool on a fresh MCP server.
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Search archived records by free text and metadata filters."),
		mcp.WithString("query", mcp.Description("Free text matched against names, titles, summaries and keywords")),
		mcp.WithString("category", mcp.Description("Exact category")),
		mcp.WithString("document_type", mcp.Description("Exact document type")),
		mcp.WithString("status", mcp.Description("active, archived or destroyed")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), tools.SearchRecords)

	s.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Fetch one archived record with its full ISO metadata."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), tools.GetRecord)

	s.AddTool(mcp.NewTool("compliance_alerts",
		mcp.WithDescription("List active records whose retention period has expired."),
	), tools.ComplianceAlerts)

	s.AddTool(mcp.NewTool("archive_stats",
		mcp.WithDescription("Summarize the archive by status, category, document type and OCR state."),
	), tools.ArchiveStats)

	s.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report the progress of the current or last sync batch."),
	), tools.SyncStatus)

	return s
}

func (t *Tools) SearchRecords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := domain.RecordFilter{
		Query:        req.GetString("query", ""),
		Category:     req.GetString("category", ""),
		DocumentType: req.GetString("document_type", ""),
		Limit:        req.GetInt("limit", defaultSearchLimit),
	}
	if filter.Limit <= 0 || filter.Limit > maxSearchLimit {
		filter.Limit = maxSearchLimit
	}
	if raw := req.GetString("status", ""); raw != "" {
		status, ok := domain.ParseRecordStatus(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", raw)), nil
		}
		filter.Status = status
	}

	items := t.reader.Search(filter)
	out := make([]recordView, 0, len(items))
	for i := range items {
		out = append(out, viewOf(&items[i]))
	}
	return jsonResult(map[string]any{"items": out, "count": len(out)})
}

func (t *Tools) GetRecord(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := t.reader.Get(id)
	if err != nil {
		if domain.IsKind(err, domain.ErrRecordNotFound) {
			return mcp.NewToolResultError("record not found: " + id), nil
		}
		return nil, err
	}
	return jsonResult(rec)
}

func (t *Tools) ComplianceAlerts(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := t.reader.ComplianceAlerts(t.now())
	out := make([]recordView, 0, len(items))
	for i := range items {
		out = append(out, viewOf(&items[i]))
	}
	return jsonResult(map[string]any{"items": out, "count": len(out)})
}

func (t *Tools) ArchiveStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.reader.Stats(t.now()))
}

func (t *Tools) SyncStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.status == nil {
		return jsonResult(domain.BatchProgress{Phase: domain.PhaseIdle})
	}
	return jsonResult(t.status())
}

// recordView is the compact shape returned by list tools.
type recordView struct {
	ID           string     `json:"id"`
	RecordID     string     `json:"recordId,omitempty"`
	Name         string     `json:"name"`
	Path         string     `json:"path,omitempty"`
	Title        string     `json:"title,omitempty"`
	Category     string     `json:"category,omitempty"`
	DocumentType string     `json:"documentType,omitempty"`
	Status       string     `json:"status,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
}

func viewOf(rec *domain.FileRecord) recordView {
	v := recordView{ID: rec.ID, Name: rec.Name}
	if m := rec.ISOMetadata; m != nil {
		v.RecordID = m.RecordID
		v.Path = m.OriginalPath
		v.Title = m.Title
		v.Category = m.Category
		v.DocumentType = m.DocumentType
		v.Status = string(m.Status)
		v.ExpiryDate = m.ExpiryDate
	}
	return v
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}
