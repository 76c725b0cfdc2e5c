package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cabinmind/copilot/pkg/models"
)

// ToolExecutor is the subset of internal/tools.Registry the MCP server
// surface depends on. Kept as an interface so server.go has no import
// dependency on the tools package.
type ToolExecutor interface {
	List() []models.ToolDescriptor
	Execute(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error)
}

// ServerInfo is the `initialize` response payload (§6).
type ServerInfo struct {
	ServerName   string         `json:"server_name"`
	Version      string         `json:"version"`
	Capabilities map[string]any `json:"capabilities"`
}

// Server exposes the registry/execution contract (C8) over the MCP wire
// surface: `initialize`, `tools/list`, `tools/call` (§6). Unlike the
// package's Client/Manager (which connect outward to MCP servers), Server
// is this process acting as the server other MCP clients call into.
type Server struct {
	info  ServerInfo
	tools ToolExecutor
}

// NewServer creates a Server bound to a tool registry.
func NewServer(name, version string, tools ToolExecutor) *Server {
	return &Server{
		info: ServerInfo{
			ServerName: name,
			Version:    version,
			Capabilities: map[string]any{
				"tools": map[string]any{},
			},
		},
		tools: tools,
	}
}

// toolListEntry is the `tools/list` wire shape: `{name, description,
// input_schema}` (§6).
type toolListEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Handle dispatches one JSON-RPC request to initialize/tools.list/
// tools.call and returns the JSON-RPC response envelope. It never returns a
// transport-level error: failures are encoded as JSONRPCResponse.Error.
func (s *Server) Handle(ctx context.Context, req JSONRPCRequest) JSONRPCResponse {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		result, _ := json.Marshal(s.info)
		resp.Result = result

	case "tools/list":
		entries := make([]toolListEntry, 0)
		for _, t := range s.tools.List() {
			entries = append(entries, toolListEntry{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: buildInputSchema(t.Parameters),
			})
		}
		result, _ := json.Marshal(map[string]any{"tools": entries})
		resp.Result = result

	case "tools/call":
		result, rpcErr := s.handleToolsCall(ctx, req.Params)
		if rpcErr != nil {
			resp.Error = rpcErr
			return resp
		}
		resp.Result = result

	default:
		resp.Error = &JSONRPCError{Code: int(models.ErrCodeMethodNotFound), Message: "unknown method: " + req.Method}
	}

	return resp
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (json.RawMessage, *JSONRPCError) {
	var p toolsCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &JSONRPCError{Code: int(models.ErrCodeInvalidParams), Message: "invalid params: " + err.Error()}
	}
	if p.Name == "" {
		return nil, &JSONRPCError{Code: int(models.ErrCodeInvalidParams), Message: "missing required parameter: name"}
	}

	result, err := s.tools.Execute(ctx, p.Name, p.Arguments)
	if err != nil {
		if isUnknownTool(err) {
			return nil, &JSONRPCError{Code: int(models.ErrCodeMethodNotFound), Message: err.Error()}
		}
		return nil, &JSONRPCError{Code: int(models.ErrCodeInvalidParams), Message: err.Error()}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, &JSONRPCError{Code: int(models.ErrCodeInternal), Message: err.Error()}
	}
	return raw, nil
}

func isUnknownTool(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "tool not found")
}

func buildInputSchema(params []models.ParameterSchema) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		prop := map[string]any{"type": p.Type}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}
