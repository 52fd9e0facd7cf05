package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/traitdex/traitdex/internal/daemon"
	"github.com/traitdex/traitdex/internal/rpc"
)

//go:embed instructions.md
var instructions string

type Server struct {
	mcpServer *server.MCPServer
	client    *daemon.Client
}

func NewServer(socketPath string) (*Server, error) {
	client, err := daemon.ConnectOrSpawn(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}

	s := &Server{client: client}

	mcpServer := server.NewMCPServer(
		"traitdex",
		"0.1.0",
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("add_crates",
			mcp.WithDescription("Fetch Rust crate documentation from docs.rs and register every trait's implementor index. Synchronous. Version defaults to \"latest\"."),
			addCratesSchema,
		),
		s.handleAddCrates,
	)

	mcpServer.AddTool(
		mcp.NewTool("list_traits",
			mcp.WithDescription("List the traits registered for an indexed crate, with implementor counts."),
			mcp.WithString("crate",
				mcp.Description("Crate name (e.g., \"objc\")"),
				mcp.Required(),
			),
			mcp.WithString("version",
				mcp.Description("Version (default: \"latest\")"),
			),
		),
		s.handleListTraits,
	)

	mcpServer.AddTool(
		mcp.NewTool("get_implementors",
			mcp.WithDescription("Get the registered implementors of a trait: HTML fragments grouped by implementing crate, in registration order. Results can also be read as impl:// resources."),
			mcp.WithString("crate",
				mcp.Description("Crate that defines the trait"),
				mcp.Required(),
			),
			mcp.WithString("trait",
				mcp.Description("Full trait path (e.g., \"objc::Message\")"),
				mcp.Required(),
			),
			mcp.WithString("version",
				mcp.Description("Version (default: \"latest\")"),
			),
		),
		s.handleGetImplementors,
	)

	mcpServer.AddTool(
		mcp.NewTool("search_impls",
			mcp.WithDescription("Search implementor headers across all indexed crates by substring (e.g., a type name). Case-insensitive."),
			mcp.WithString("query",
				mcp.Description("Substring to match against impl headers"),
				mcp.Required(),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results (default 20)"),
			),
		),
		s.handleSearchImpls,
	)
}

func addCratesSchema(t *mcp.Tool) {
	t.InputSchema.Required = append(t.InputSchema.Required, "crates")
	t.InputSchema.Properties["crates"] = map[string]any{
		"type":        "array",
		"description": "List of crates to index",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Crate name (e.g., \"objc\")",
				},
				"version": map[string]any{
					"type":        "string",
					"description": "Version (default: \"latest\")",
				},
			},
			"required": []string{"name"},
		},
	}
}

func (s *Server) registerResources(mcpServer *server.MCPServer) {
	mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"impl://{crate}/{version}/{trait}",
			"Trait implementor index",
			mcp.WithTemplateDescription("Read a trait's registered implementor fragments. The trait segment is the full path, e.g. impl://objc/latest/objc::Message."),
			mcp.WithTemplateMIMEType("text/html"),
		),
		s.handleReadResource,
	)
}

func (s *Server) handleAddCrates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	cratesRaw, ok := args["crates"]
	if !ok {
		return mcp.NewToolResultError("missing required parameter: crates"), nil
	}

	cratesJSON, err := json.Marshal(cratesRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid crates parameter: %v", err)), nil
	}

	var specs []rpc.CrateSpec
	if err := json.Unmarshal(cratesJSON, &specs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid crates format: %v", err)), nil
	}

	resp, err := s.client.AddCrates(ctx, specs, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add crates: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp.Results, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleListTraits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	crate, _ := args["crate"].(string)
	if crate == "" {
		return mcp.NewToolResultError("missing required parameter: crate"), nil
	}
	version, _ := args["version"].(string)

	resp, err := s.client.ListTraits(ctx, rpc.ListTraitsRequest{Crate: crate, Version: version})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing traits failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp.Traits, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleGetImplementors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	crate, _ := args["crate"].(string)
	traitPath, _ := args["trait"].(string)
	if crate == "" || traitPath == "" {
		return mcp.NewToolResultError("missing required parameters: crate, trait"), nil
	}
	version, _ := args["version"].(string)

	resp, err := s.client.Implementors(ctx, rpc.ImplementorsRequest{
		Crate:   crate,
		Version: version,
		Trait:   traitPath,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("getting implementors failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleSearchImpls(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	var searchReq rpc.SearchRequest
	searchReq.Query = query
	if limit, ok := args["limit"].(float64); ok {
		searchReq.Limit = int(limit)
	}

	resp, err := s.client.Search(ctx, searchReq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp.Results, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleReadResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	trimmed := strings.TrimPrefix(uri, "impl://")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid resource URI: %s", uri)
	}

	resp, err := s.client.Implementors(ctx, rpc.ImplementorsRequest{
		Crate:   parts[0],
		Version: parts[1],
		Trait:   parts[2],
	})
	if err != nil {
		return nil, fmt.Errorf("getting implementors: %w", err)
	}

	var b strings.Builder
	if resp.DocsHTML != "" {
		b.WriteString(resp.DocsHTML)
		b.WriteString("\n")
	}
	for _, entry := range resp.Entries {
		fmt.Fprintf(&b, "<!-- implementors in %s -->\n", entry.Crate)
		for _, frag := range entry.Fragments {
			b.WriteString(frag)
			b.WriteString("\n")
		}
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/html",
			Text:     b.String(),
		},
	}, nil
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) Shutdown(_ context.Context) error {
	return nil
}
