package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/notifd/notifd/pkg/manager"
	"github.com/notifd/notifd/pkg/protocol"
)

func (s *Server) handleGetHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snaps := s.mgr.Status()

	connected := 0
	for _, snap := range snaps {
		if snap.State == manager.StateConnected.String() {
			connected++
		}
	}

	out := GetHealthOutput{
		Status:    "healthy",
		Devices:   len(snaps),
		Connected: connected,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleScanDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timeout := 60
	if v, ok := request.GetArguments()["timeout_seconds"]; ok {
		if f, ok := v.(float64); ok && f > 0 {
			timeout = int(f)
		}
	}
	if timeout > 600 {
		return mcp.NewToolResultError("timeout_seconds must be at most 600"), nil
	}

	scanCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	report, err := s.mgr.ScanAndConnectAll(scanCtx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %s", err)), nil
	}

	out := ScanDevicesOutput{
		Connected: report.Connected,
		Failed:    report.Failed,
		Count:     len(report.Connected),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snaps := s.mgr.Status()

	out := ListDevicesOutput{
		Devices: snaps,
		Count:   len(snaps),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := s.mgr.Device(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("device not found: %s", err)), nil
	}

	out := GetStatusOutput{Device: snap}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleSendText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := requiredString(request, "text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	cmd := protocol.Text{
		Size:       protocol.ParseSize(optionalString(args, "size")),
		Foreground: protocol.ParseColorOr(optionalString(args, "color"), protocol.White),
		Background: protocol.ParseColorOr(optionalString(args, "background"), protocol.Black),
		Content:    text,
	}

	if err := s.mgr.SendCommand(ctx, id, cmd); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to send text: %s", err)), nil
	}

	out := SendOutput{
		Success: true,
		Device:  id,
		Message: fmt.Sprintf("Text queued for %s", id),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleClearScreen(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cmd := protocol.Clear{
		Color: protocol.ParseColorOr(optionalString(request.GetArguments(), "color"), protocol.Black),
	}

	if err := s.mgr.SendCommand(ctx, id, cmd); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear screen: %s", err)), nil
	}

	out := SendOutput{
		Success: true,
		Device:  id,
		Message: fmt.Sprintf("Clear queued for %s", id),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleSendCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredString(request, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, ok := request.GetArguments()["command"]
	if !ok || raw == nil {
		return mcp.NewToolResultError(`required parameter "command" is missing`), nil
	}
	payload, ok := raw.(map[string]any)
	if !ok {
		return mcp.NewToolResultError(`parameter "command" must be an object`), nil
	}

	if err := s.validator.Validate(payload); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation error: %s", err)), nil
	}

	cmd, err := protocol.FromMap(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid command: %s", err)), nil
	}

	if err := s.mgr.SendCommand(ctx, id, cmd); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to send command: %s", err)), nil
	}

	out := SendOutput{
		Success: true,
		Device:  id,
		Message: fmt.Sprintf("Command queued for %s", id),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleBroadcastText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := requiredString(request, "text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	cmd := protocol.Text{
		Size:       protocol.ParseSize(optionalString(args, "size")),
		Foreground: protocol.ParseColorOr(optionalString(args, "color"), protocol.White),
		Background: protocol.Black,
		Content:    text,
	}

	results, err := s.mgr.Broadcast(ctx, cmd)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("broadcast failed: %s", err)), nil
	}

	out := BroadcastOutput{Results: make(map[string]string, len(results))}
	for id, derr := range results {
		if derr != nil {
			out.Results[id] = derr.Error()
			out.Failed++
			continue
		}
		out.Results[id] = "delivered"
		out.Succeeded++
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// --- helpers ---

func requiredString(request mcp.CallToolRequest, key string) (string, error) {
	args := request.GetArguments()
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("required parameter %q is missing", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func formatJSON(v any) string {
	b, err := encodeJSON(v)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}

func encodeJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
