package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cabinmind/copilot/internal/tools"
	"github.com/cabinmind/copilot/pkg/models"
)

const maxToolNameLen = 64

// ToolCaller defines the MCP tool execution contract used by the bridge.
type ToolCaller interface {
	CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error)
}

// ResourceReader defines the MCP resource read contract used by the bridge.
type ResourceReader interface {
	ReadResource(ctx context.Context, serverID, uri string) ([]*ResourceContent, error)
}

// PromptGetter defines the MCP prompt get contract used by the bridge.
type PromptGetter interface {
	GetPrompt(ctx context.Context, serverID, name string, arguments map[string]string) (*GetPromptResult, error)
}

// toolBridge wraps one remote MCP tool so it can be registered in the local
// tool registry (C8) alongside the sample vehicle catalog. Its handler
// ignores the VehicleState passed by the registry: a bridged tool's state
// lives on the remote MCP server, not in this process.
type toolBridge struct {
	caller   ToolCaller
	serverID string
	tool     *MCPTool
}

func (b *toolBridge) descriptor(name string) models.ToolDescriptor {
	desc := strings.TrimSpace(b.tool.Description)
	if desc == "" {
		desc = fmt.Sprintf("MCP tool %s.%s", b.serverID, b.tool.Name)
	} else {
		desc = fmt.Sprintf("MCP tool %s.%s: %s", b.serverID, b.tool.Name, desc)
	}
	return models.ToolDescriptor{Name: name, Description: desc, Category: "mcp"}
}

func (b *toolBridge) handler(ctx context.Context, _ *tools.VehicleState, args json.RawMessage) (models.ToolResult, error) {
	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return models.ToolResult{}, err
		}
	}
	result, err := b.caller.CallTool(ctx, b.serverID, b.tool.Name, arguments)
	if err != nil {
		return models.ToolResult{}, err
	}
	content, isError := formatToolCallResult(result)
	return models.ToolResult{Success: !isError, Message: content}, nil
}

// resourceListHandler, resourceReadHandler, promptListHandler, and
// promptGetHandler expose the remaining MCP surfaces (resources, prompts) as
// ordinary tools so an agent never needs a second tool-calling convention.

func resourceListHandler(mgr *Manager, serverID string) tools.Handler {
	return func(ctx context.Context, _ *tools.VehicleState, _ json.RawMessage) (models.ToolResult, error) {
		resources := mgr.AllResources()[serverID]
		payload, err := json.Marshal(resources)
		if err != nil {
			return models.ToolResult{}, err
		}
		return models.ToolResult{Success: true, Message: string(payload)}, nil
	}
}

func resourceReadHandler(reader ResourceReader, serverID string) tools.Handler {
	return func(ctx context.Context, _ *tools.VehicleState, args json.RawMessage) (models.ToolResult, error) {
		var input struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(args, &input); err != nil {
			return models.ToolResult{}, err
		}
		if strings.TrimSpace(input.URI) == "" {
			return models.ToolResult{}, fmt.Errorf("uri is required")
		}
		contents, err := reader.ReadResource(ctx, serverID, input.URI)
		if err != nil {
			return models.ToolResult{}, err
		}
		content, isError := formatResourceContents(contents)
		return models.ToolResult{Success: !isError, Message: content}, nil
	}
}

func promptListHandler(mgr *Manager, serverID string) tools.Handler {
	return func(ctx context.Context, _ *tools.VehicleState, _ json.RawMessage) (models.ToolResult, error) {
		prompts := mgr.AllPrompts()[serverID]
		payload, err := json.Marshal(prompts)
		if err != nil {
			return models.ToolResult{}, err
		}
		return models.ToolResult{Success: true, Message: string(payload)}, nil
	}
}

func promptGetHandler(getter PromptGetter, serverID string) tools.Handler {
	return func(ctx context.Context, _ *tools.VehicleState, args json.RawMessage) (models.ToolResult, error) {
		var input struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments,omitempty"`
		}
		if err := json.Unmarshal(args, &input); err != nil {
			return models.ToolResult{}, err
		}
		if strings.TrimSpace(input.Name) == "" {
			return models.ToolResult{}, fmt.Errorf("name is required")
		}
		result, err := getter.GetPrompt(ctx, serverID, input.Name, input.Arguments)
		if err != nil {
			return models.ToolResult{}, err
		}
		content, isError := formatPromptResult(result)
		return models.ToolResult{Success: !isError, Message: content}, nil
	}
}

// RegisterTools registers every tool exposed by mgr's connected servers, plus
// a resources/prompts surface per server, into registry. It returns the
// names it registered (§4.8 "MCP-sourced tools join the same registry as the
// sample catalog").
func RegisterTools(registry *tools.Registry, mgr *Manager) []string {
	if registry == nil || mgr == nil {
		return nil
	}

	entries := listToolsSorted(mgr)
	used := make(map[string]struct{})
	registered := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := safeToolName(entry.serverID, entry.tool.Name, used)
		bridge := &toolBridge{caller: mgr, serverID: entry.serverID, tool: entry.tool}
		registry.Register(bridge.descriptor(name), bridge.handler)
		registered = append(registered, name)
	}

	for _, serverID := range listServerIDs(mgr) {
		resListName := safeToolName(serverID, "resources_list", used)
		resReadName := safeToolName(serverID, "resource_read", used)
		promptListName := safeToolName(serverID, "prompts_list", used)
		promptGetName := safeToolName(serverID, "prompt_get", used)

		registry.Register(models.ToolDescriptor{Name: resListName, Description: fmt.Sprintf("List MCP resources for %s", serverID), Category: "mcp"}, resourceListHandler(mgr, serverID))
		registry.Register(models.ToolDescriptor{Name: resReadName, Description: fmt.Sprintf("Read an MCP resource from %s (provide uri)", serverID), Category: "mcp"}, resourceReadHandler(mgr, serverID))
		registry.Register(models.ToolDescriptor{Name: promptListName, Description: fmt.Sprintf("List MCP prompts for %s", serverID), Category: "mcp"}, promptListHandler(mgr, serverID))
		registry.Register(models.ToolDescriptor{Name: promptGetName, Description: fmt.Sprintf("Fetch an MCP prompt from %s (provide name, arguments)", serverID), Category: "mcp"}, promptGetHandler(mgr, serverID))

		registered = append(registered, resListName, resReadName, promptListName, promptGetName)
	}

	return registered
}

type toolEntry struct {
	serverID string
	tool     *MCPTool
}

func listToolsSorted(mgr *Manager) []toolEntry {
	all := mgr.AllTools()
	if len(all) == 0 {
		return nil
	}

	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	var entries []toolEntry
	for _, serverID := range serverIDs {
		toolList := all[serverID]
		sort.Slice(toolList, func(i, j int) bool {
			return toolList[i].Name < toolList[j].Name
		})
		for _, tool := range toolList {
			entries = append(entries, toolEntry{serverID: serverID, tool: tool})
		}
	}
	return entries
}

func listServerIDs(mgr *Manager) []string {
	seen := make(map[string]struct{})
	for id := range mgr.AllTools() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllResources() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllPrompts() {
		seen[id] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func safeToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeToolPart(serverID) + "_" + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}

	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}

	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}

func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}

	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}

func formatResourceContents(contents []*ResourceContent) (string, bool) {
	if len(contents) == 0 {
		return "", false
	}
	if len(contents) == 1 && contents[0].Text != "" {
		return contents[0].Text, false
	}
	payload, err := json.Marshal(contents)
	if err != nil {
		return "", false
	}
	return string(payload), false
}

func formatPromptResult(result *GetPromptResult) (string, bool) {
	if result == nil || len(result.Messages) == 0 {
		return "", false
	}
	if len(result.Messages) == 1 && result.Messages[0].Content.Type == "text" {
		return result.Messages[0].Content.Text, false
	}
	payload, err := json.Marshal(result.Messages)
	if err != nil {
		return "", false
	}
	return string(payload), false
}
