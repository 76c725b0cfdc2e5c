package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cabinmind/copilot/pkg/models"
)

type fakeExecutor struct {
	descriptors []models.ToolDescriptor
	execute     func(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error)
}

func (f *fakeExecutor) List() []models.ToolDescriptor { return f.descriptors }

func (f *fakeExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error) {
	return f.execute(ctx, name, args)
}

func TestHandleInitialize(t *testing.T) {
	s := NewServer("copilot", "0.1.0", &fakeExecutor{})
	resp := s.Handle(context.Background(), JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var info ServerInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if info.ServerName != "copilot" {
		t.Errorf("expected server_name copilot, got %q", info.ServerName)
	}
}

func TestHandleToolsList(t *testing.T) {
	exec := &fakeExecutor{descriptors: []models.ToolDescriptor{
		{
			Name:        "set_temperature",
			Description: "set climate",
			Parameters: []models.ParameterSchema{
				{Name: "zone", Type: "string", Required: true, Enum: []string{"driver", "passenger"}},
				{Name: "celsius", Type: "number", Required: true},
			},
		},
	}}
	s := NewServer("copilot", "0.1.0", exec)
	resp := s.Handle(context.Background(), JSONRPCRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var out struct {
		Tools []toolListEntry `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(out.Tools) != 1 || out.Tools[0].Name != "set_temperature" {
		t.Fatalf("unexpected tools/list result: %+v", out)
	}
	required, _ := out.Tools[0].InputSchema["required"].([]any)
	if len(required) != 2 {
		t.Errorf("expected 2 required params in schema, got %v", out.Tools[0].InputSchema["required"])
	}
}

func TestHandleToolsCallMissingRequiredParameter(t *testing.T) {
	exec := &fakeExecutor{
		execute: func(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error) {
			return models.ToolResult{}, errMissingCelsius
		},
	}
	s := NewServer("copilot", "0.1.0", exec)

	params, _ := json.Marshal(map[string]any{
		"name":      "set_temperature",
		"arguments": map[string]any{"zone": "driver"},
	})
	resp := s.Handle(context.Background(), JSONRPCRequest{JSONRPC: "2.0", ID: 3, Method: "tools/call", Params: params})

	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != int(models.ErrCodeInvalidParams) {
		t.Errorf("expected code %d, got %d", models.ErrCodeInvalidParams, resp.Error.Code)
	}
	if resp.Error.Message != "missing required parameter: celsius" {
		t.Errorf("unexpected message: %q", resp.Error.Message)
	}
}

func TestHandleToolsCallUnknownMethod(t *testing.T) {
	s := NewServer("copilot", "0.1.0", &fakeExecutor{})
	resp := s.Handle(context.Background(), JSONRPCRequest{JSONRPC: "2.0", ID: 4, Method: "bogus/method"})

	if resp.Error == nil || resp.Error.Code != int(models.ErrCodeMethodNotFound) {
		t.Fatalf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestHandleToolsCallUnknownTool(t *testing.T) {
	exec := &fakeExecutor{
		execute: func(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error) {
			return models.ToolResult{}, errToolNotFound
		},
	}
	s := NewServer("copilot", "0.1.0", exec)

	params, _ := json.Marshal(map[string]any{"name": "does_not_exist", "arguments": map[string]any{}})
	resp := s.Handle(context.Background(), JSONRPCRequest{JSONRPC: "2.0", ID: 5, Method: "tools/call", Params: params})

	if resp.Error == nil || resp.Error.Code != int(models.ErrCodeMethodNotFound) {
		t.Fatalf("expected method-not-found error for unknown tool, got %+v", resp.Error)
	}
}

func TestHandleToolsCallSuccess(t *testing.T) {
	exec := &fakeExecutor{
		execute: func(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error) {
			return models.ToolResult{Success: true, Message: "已将驾驶员座温度设置为22度"}, nil
		},
	}
	s := NewServer("copilot", "0.1.0", exec)

	params, _ := json.Marshal(map[string]any{
		"name":      "set_temperature",
		"arguments": map[string]any{"zone": "driver", "celsius": 22},
	})
	resp := s.Handle(context.Background(), JSONRPCRequest{JSONRPC: "2.0", ID: 6, Method: "tools/call", Params: params})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var result models.ToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success result, got %+v", result)
	}
}

var errMissingCelsius = rpcTestError("missing required parameter: celsius")
var errToolNotFound = rpcTestError("tool not found: does_not_exist")

type rpcTestError string

func (e rpcTestError) Error() string { return string(e) }
