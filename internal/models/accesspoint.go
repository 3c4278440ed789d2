package models

type PlatformClass string

const (
	PlatformLegacy PlatformClass = "LEGACY"
	PlatformModern PlatformClass = "MODERN"
)

type CapabilitySet struct {
	NearbyDevices   bool `json:"nearby_devices"`
	PreciseLocation bool `json:"precise_location"`
}

// AgentStatus is the retained self-description a scan agent publishes:
// which grants it currently holds and which platform generation it runs on.
type AgentStatus struct {
	Capabilities CapabilitySet `json:"capabilities"`
	Platform     PlatformClass `json:"platform"`
}

// AccessPoint is a single radio observed in one scan pass. Instances are
// never mutated after the agent reports them.
type AccessPoint struct {
	BSSID        string `json:"bssid"`
	SSID         string `json:"ssid"`
	SignalLevel  int    `json:"signal_level"`
	FrequencyMHz int    `json:"frequency_mhz"`
	Capabilities string `json:"capabilities"`
	RTTCapable   bool   `json:"rtt_capable"`
}

// ScanSnapshot is the full payload of one scan pass: the observed access
// points plus the device-level flags reported alongside them.
type ScanSnapshot struct {
	RadioEnabled bool          `json:"radio_enabled"`
	RTTAvailable bool          `json:"rtt_available"`
	AccessPoints []AccessPoint `json:"access_points"`
}
