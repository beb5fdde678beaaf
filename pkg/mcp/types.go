package mcp

import "github.com/notifd/notifd/pkg/manager"

// --- Health Tool ---

// GetHealthOutput is the output for the get_health tool
type GetHealthOutput struct {
	Status    string `json:"status" jsonschema:"description=Overall health status"`
	Devices   int    `json:"devices" jsonschema:"description=Number of registered displays"`
	Connected int    `json:"connected" jsonschema:"description=Number of connected displays"`
	Timestamp string `json:"timestamp" jsonschema:"description=ISO8601 timestamp"`
}

// --- Scan Tool ---

// ScanDevicesOutput is the output for the scan_devices tool
type ScanDevicesOutput struct {
	Connected []string          `json:"connected" jsonschema:"description=IDs of newly connected displays"`
	Failed    map[string]string `json:"failed,omitempty" jsonschema:"description=Connect failures by device ID"`
	Count     int               `json:"count" jsonschema:"description=Number of newly connected displays"`
}

// --- List Devices Tool ---

// ListDevicesOutput is the output for the list_devices tool
type ListDevicesOutput struct {
	Devices []manager.Snapshot `json:"devices" jsonschema:"description=Registered displays with connection state"`
	Count   int                `json:"count" jsonschema:"description=Total number of displays"`
}

// --- Status Tool ---

// GetStatusOutput is the output for the get_status tool
type GetStatusOutput struct {
	Device manager.Snapshot `json:"device" jsonschema:"description=Display connection status"`
}

// --- Command Tools ---

// SendOutput is the output for send_text, clear_screen and send_command
type SendOutput struct {
	Success bool   `json:"success" jsonschema:"description=Whether the command was queued"`
	Device  string `json:"device" jsonschema:"description=Target device ID"`
	Message string `json:"message" jsonschema:"description=Status message"`
}

// BroadcastOutput is the output for the broadcast_text tool
type BroadcastOutput struct {
	Results   map[string]string `json:"results" jsonschema:"description=Per-device delivery results"`
	Succeeded int               `json:"succeeded" jsonschema:"description=Number of displays that received the text"`
	Failed    int               `json:"failed" jsonschema:"description=Number of displays that failed"`
}
