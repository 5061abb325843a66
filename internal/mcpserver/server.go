// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes Mimir's memory tools for LLM integration via stdio transport.
//
// Stdio MCP is a single-user surface, so the server binds one owner at
// construction time and every tool operates inside that owner's namespace.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mimir/internal/docservice"
	"github.com/starford/mimir/internal/parser"
)

// Server wraps the MCP server with Mimir tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *docservice.Service
	owner string
}

// New creates a new MCP server with all Mimir tools registered, scoped to
// one owner.
func New(svc *docservice.Service, ownerID string) *Server {
	s := &Server{svc: svc, owner: ownerID}

	s.mcp = server.NewMCPServer(
		"Mimir",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_knowledge",
		mcp.WithDescription("Semantic search over the owner's indexed documents. "+
			"Returns the best-matching chunks with their document IDs and scores."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language search query")),
		mcp.WithString("topic", mcp.Description("Optional topic to restrict matches to")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of matches (default 8)")),
	), s.searchKnowledge)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the published content of a document."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document ID as returned by search or list")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the owner's documents with their publish and search state."),
		mcp.WithString("category", mcp.Description("Optional category filter: knowledge or raw")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("ingest_transcript",
		mcp.WithDescription("Archive a transcript or text payload and index it for search. "+
			"The format is detected from content; see the mimir://input-formats resource "+
			"for what is accepted."),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name for the archived source (e.g. standup.vtt)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Raw payload to ingest")),
		mcp.WithString("format", mcp.Description("Optional format pin: vtt, srt, transcript, or text")),
	), s.ingestTranscript)

	// Resource: accepted input formats.
	s.mcp.AddResource(
		mcp.NewResource("mimir://input-formats", "Input Formats",
			mcp.WithResourceDescription("Input formats the ingest pipeline accepts and how they are detected."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readInputFormatsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := docservice.SearchOptions{
		Topic: req.GetString("topic", ""),
		TopK:  req.GetInt("limit", 0),
	}
	matches, err := s.svc.Search(ctx, s.owner, query, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	out, _ := json.MarshalIndent(matches, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.GetDocument(ctx, s.owner, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	version, err := s.svc.PublishedVersion(ctx, s.owner, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("document %s has no published version", id)), nil
	}
	return mcp.NewToolResultText(version.Content), nil
}

// documentRow is the compact listing shape returned by list_documents.
type documentRow struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Published  bool   `json:"published"`
	Searchable bool   `json:"searchable"`
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	envs, _, err := s.svc.ListDocuments(ctx, s.owner, 100, 0, category)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rows := make([]documentRow, 0, len(envs))
	for _, e := range envs {
		rows = append(rows, documentRow{
			ID:         e.ID,
			Title:      e.Title,
			Category:   e.Category,
			Published:  e.Published(),
			Searchable: e.Searchable,
		})
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) ingestTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := docservice.IngestOptions{Format: parser.Format(req.GetString("format", ""))}

	res, err := s.svc.IngestSource(ctx, s.owner, name, []byte(content), opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readInputFormatsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "mimir://input-formats",
			MIMEType: "text/markdown",
			Text:     InputFormatsGuide,
		},
	}, nil
}
