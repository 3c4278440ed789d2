package messages

import "wifi-rtt-sync/internal/models"

// Wire envelopes for the agent request/response exchanges. Every message
// carries the correlation ID of the request it belongs to; responses
// without a known ID are dropped by the agent client.

type AgentStatusMessage struct {
	Data   models.AgentStatus `json:"data"`
	Source string             `json:"source"`
}

type ScanRequestMessage struct {
	RequestID string `json:"request_id"`
	Source    string `json:"source"`
}

type ScanResultMessage struct {
	RequestID    string               `json:"request_id"`
	RadioEnabled bool                 `json:"radio_enabled"`
	RTTAvailable bool                 `json:"rtt_available"`
	AccessPoints []models.AccessPoint `json:"access_points"`
	Source       string               `json:"source"`
}

type RangingRequestMessage struct {
	RequestID string   `json:"request_id"`
	BSSIDs    []string `json:"bssids"`
	Source    string   `json:"source"`
}

// RangingResultMessage carries either result tuples or a failure code,
// never both. FailureCode nil means success.
type RangingResultMessage struct {
	RequestID   string                 `json:"request_id"`
	Results     []models.RangingResult `json:"results,omitempty"`
	FailureCode *int                   `json:"failure_code,omitempty"`
	Source      string                 `json:"source"`
}

type DisplayMessage struct {
	Entries []models.DisplayEntry `json:"entries"`
	Source  string                `json:"source"`
}

type TriggerMessage struct {
	Source string `json:"source"`
}
