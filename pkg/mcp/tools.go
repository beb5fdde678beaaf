package mcp

import "github.com/mark3labs/mcp-go/mcp"

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	// Health check
	s.mcpServer.AddTool(
		mcp.NewTool("get_health",
			mcp.WithDescription("Check the health of the notifd service and how many displays are connected"),
		),
		s.handleGetHealth,
	)

	// Scan for displays
	s.mcpServer.AddTool(
		mcp.NewTool("scan_devices",
			mcp.WithDescription("Run one discovery pass and connect to every matching display not already registered"),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Overall pass timeout in seconds (default 60, max 600)"),
			),
		),
		s.handleScanDevices,
	)

	// List displays
	s.mcpServer.AddTool(
		mcp.NewTool("list_devices",
			mcp.WithDescription("List all registered displays with their connection state"),
		),
		s.handleListDevices,
	)

	// Get one display's status
	s.mcpServer.AddTool(
		mcp.NewTool("get_status",
			mcp.WithDescription("Get the connection status of a specific display"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Device ID (BLE address or serial port)"),
			),
		),
		s.handleGetStatus,
	)

	// Send text
	s.mcpServer.AddTool(
		mcp.NewTool("send_text",
			mcp.WithDescription("Show a text message on one display"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Device ID (BLE address or serial port)"),
			),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("Text to display (max 255 bytes)"),
			),
			mcp.WithString("size",
				mcp.Description("Font size: small, medium, large or xlarge (default medium)"),
			),
			mcp.WithString("color",
				mcp.Description("Text color name or #RRGGBB (default white)"),
			),
			mcp.WithString("background",
				mcp.Description("Background color name or #RRGGBB (default black)"),
			),
		),
		s.handleSendText,
	)

	// Clear screen
	s.mcpServer.AddTool(
		mcp.NewTool("clear_screen",
			mcp.WithDescription("Clear a display to a solid color"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Device ID (BLE address or serial port)"),
			),
			mcp.WithString("color",
				mcp.Description("Fill color name or #RRGGBB (default black)"),
			),
		),
		s.handleClearScreen,
	)

	// Raw command
	s.mcpServer.AddTool(
		mcp.NewTool("send_command",
			mcp.WithDescription("Send a raw drawing command (clear/text/line/rect/draw_region/image) to one display. The command object is validated against the command schema."),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Device ID (BLE address or serial port)"),
			),
			mcp.WithObject("command",
				mcp.Required(),
				mcp.Description("Command payload, e.g. {\"type\": \"rect\", \"x\": 10, \"y\": 10, \"w\": 50, \"h\": 30, \"fill\": true}"),
			),
		),
		s.handleSendCommand,
	)

	// Broadcast text
	s.mcpServer.AddTool(
		mcp.NewTool("broadcast_text",
			mcp.WithDescription("Show a text message on every connected display and report per-device results"),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("Text to display (max 255 bytes)"),
			),
			mcp.WithString("size",
				mcp.Description("Font size: small, medium, large or xlarge (default medium)"),
			),
			mcp.WithString("color",
				mcp.Description("Text color name or #RRGGBB (default white)"),
			),
		),
		s.handleBroadcastText,
	)
}
