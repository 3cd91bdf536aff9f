package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/keydocs/internal/docs"
	"github.com/kalambet/keydocs/internal/docstore"
	"github.com/kalambet/keydocs/internal/ingest"
	"github.com/kalambet/keydocs/internal/relevance"
	"github.com/kalambet/keydocs/internal/search"
)

// maxSnippetRunes bounds chunk content returned by search_docs.
const maxSnippetRunes = 1200

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store          *docstore.Store
	Ingest         *ingest.Service
	Relevance      *relevance.Engine
	SearchDefaults search.Params
}

// NewMCPServer creates an MCP server with all keydocs tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.SearchDefaults.MaxResults == 0 {
		deps.SearchDefaults = search.DefaultParams()
	}

	s := server.NewMCPServer(
		"keydocs",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("keydocs: local API documentation search and credential suggestions for the current editing context."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_docs",
			mcp.WithDescription("Semantically search indexed API documentation and return the most relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
			mcp.WithNumber("min_similarity", mcp.Description("Minimum cosine similarity in [0, 1] (default 0.7)")),
			mcp.WithString("library_id", mcp.Description("Restrict results to one library")),
			mcp.WithString("content_type", mcp.Description("Restrict results to one content type, e.g. reference or example")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpSearchDocs(deps),
	)

	s.AddTool(
		mcp.NewTool("add_doc",
			mcp.WithDescription("Index a documentation passage under a provider's library."),
			mcp.WithString("provider_id", mcp.Description("Provider identifier, e.g. stripe"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Documentation text"), mcp.Required()),
			mcp.WithString("provider_name", mcp.Description("Display name used when the provider's library is created")),
			mcp.WithString("title", mcp.Description("Passage title")),
			mcp.WithArray("section_path", mcp.Description("Heading path from the document root")),
			mcp.WithString("content_type", mcp.Description("Content type; classified from the text when omitted")),
			mcp.WithArray("tags", mcp.Description("Optional tags for the provider's library")),
		),
		mcpAddDoc(deps),
	)

	s.AddTool(
		mcp.NewTool("suggest_credentials", append([]mcp.ToolOption{
			mcp.WithDescription("Rank candidate credentials for the current editing context using past usage."),
			mcp.WithArray("candidate_ids", mcp.Description("Credential identifiers to rank"), mcp.Required()),
			mcp.WithReadOnlyHintAnnotation(true),
		}, contextParams()...)...),
		mcpSuggestCredentials(deps),
	)

	s.AddTool(
		mcp.NewTool("record_credential_usage", append([]mcp.ToolOption{
			mcp.WithDescription("Record that a credential was used in a context, and whether the use succeeded."),
			mcp.WithString("credential_id", mcp.Description("Credential identifier"), mcp.Required()),
			mcp.WithBoolean("success", mcp.Description("Whether the use succeeded (default true)")),
		}, contextParams()...)...),
		mcpRecordUsage(deps),
	)

	s.AddTool(
		mcp.NewTool("assess_context", append([]mcp.ToolOption{
			mcp.WithDescription("Assess how risky it is to expose a credential in the given context."),
			mcp.WithReadOnlyHintAnnotation(true),
		}, contextParams()...)...),
		mcpAssessContext(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"docs://stats",
			"Documentation Stats",
			mcp.WithResourceDescription("Row counts of libraries, chunks, embeddings, sessions, messages and generations"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

// contextParams are the environment context arguments shared by the
// credential tools.
func contextParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("active_app", mcp.Description("Focused application, e.g. vscode or chrome")),
		mcp.WithString("file_extension", mcp.Description("Extension of the file being edited")),
		mcp.WithString("file_path", mcp.Description("Path of the file being edited")),
		mcp.WithString("project_type", mcp.Description("Project kind, e.g. web or cli")),
		mcp.WithString("language", mcp.Description("Programming language")),
	}
}

func contextFromRequest(req mcp.CallToolRequest) relevance.Context {
	return relevance.Context{
		ActiveApp:     req.GetString("active_app", ""),
		FileExtension: req.GetString("file_extension", ""),
		FilePath:      req.GetString("file_path", ""),
		ProjectType:   req.GetString("project_type", ""),
		Language:      req.GetString("language", ""),
	}
}

// getOptionalBool extracts an optional boolean argument.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if val, ok := args[key].(bool); ok {
			return val, true
		}
	}
	return false, false
}

// getOptionalFloat extracts an optional numeric argument.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		switch v := args[key].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}

type searchHit struct {
	ChunkID     string           `json:"chunk_id"`
	LibraryID   string           `json:"library_id"`
	Title       string           `json:"title"`
	SectionPath []string         `json:"section_path,omitempty"`
	ContentType docs.ContentType `json:"content_type"`
	Content     string           `json:"content"`
	Similarity  float64          `json:"similarity"`
	Relevance   float64          `json:"relevance"`
}

func mcpSearchDocs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}

		p := deps.SearchDefaults
		if limit := req.GetInt("limit", 0); limit > 0 {
			p.MaxResults = min(limit, 50)
		}
		if minSim, ok := getOptionalFloat(req, "min_similarity"); ok {
			if minSim < 0 || minSim > 1 {
				return mcpError("min_similarity must be in [0, 1]"), nil
			}
			p.MinSimilarity = minSim
		}
		if lib := req.GetString("library_id", ""); lib != "" {
			p.LibraryIDs = []string{lib}
		}
		if ct := req.GetString("content_type", ""); ct != "" {
			parsed, err := docs.ParseContentType(ct)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid content_type: %v", err)), nil
			}
			p.ContentTypes = []docs.ContentType{parsed}
		}

		results, err := deps.Ingest.Search(ctx, query, p)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		hits := make([]searchHit, len(results))
		for i, r := range results {
			content := r.Chunk.Content
			if utf8.RuneCountInString(content) > maxSnippetRunes {
				content = string([]rune(content)[:maxSnippetRunes]) + "..."
			}
			hits[i] = searchHit{
				ChunkID:     r.Chunk.ID,
				LibraryID:   r.LibraryID,
				Title:       r.Chunk.Title,
				SectionPath: r.Chunk.SectionPath,
				ContentType: r.Chunk.Metadata.ContentType,
				Content:     content,
				Similarity:  r.Similarity,
				Relevance:   r.Relevance,
			}
		}
		return mcpJSON(hits)
	}
}

func mcpAddDoc(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		provider, err := req.RequireString("provider_id")
		if err != nil {
			return mcpError("provider_id is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		id, err := deps.Ingest.IngestEntry(ctx, ingest.Entry{
			ProviderID:   provider,
			ProviderName: req.GetString("provider_name", ""),
			SourceText:   content,
			Title:        req.GetString("title", ""),
			SectionPath:  req.GetStringSlice("section_path", nil),
			ContentType:  req.GetString("content_type", ""),
			Tags:         req.GetStringSlice("tags", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add doc: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored chunk %s", id)), nil
	}
}

func mcpSuggestCredentials(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids := req.GetStringSlice("candidate_ids", nil)
		if len(ids) == 0 {
			return mcpError("candidate_ids is required"), nil
		}
		return mcpJSON(deps.Relevance.AnalyzeContext(contextFromRequest(req), ids))
	}
}

func mcpRecordUsage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("credential_id")
		if err != nil {
			return mcpError("credential_id is required"), nil
		}
		success := true
		if v, ok := getOptionalBool(req, "success"); ok {
			success = v
		}
		if err := deps.Relevance.RecordUsage(id, contextFromRequest(req), success); err != nil {
			return mcpError(fmt.Sprintf("failed to record usage: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded usage of %s (success=%t)", id, success)), nil
	}
}

func mcpAssessContext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Relevance.SecurityScore(contextFromRequest(req)))
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Store.GetLibraryStats())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
