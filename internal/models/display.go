package models

// DisplayEntry is the presentation row derived from one scanned access
// point. DistanceMeters and DistanceStdDevMeters are set together once a
// ranging result for the same BSSID arrives, and stay nil otherwise.
// Entries for access points without responder support never carry a
// distance.
type DisplayEntry struct {
	BSSID                string   `json:"bssid"`
	SSID                 string   `json:"ssid"`
	SignalLevel          int      `json:"signal_level"`
	FrequencyMHz         int      `json:"frequency_mhz"`
	Capabilities         string   `json:"capabilities"`
	RTTCapable           bool     `json:"rtt_capable"`
	DistanceMeters       *float64 `json:"distance_meters,omitempty"`
	DistanceStdDevMeters *float64 `json:"distance_std_dev_meters,omitempty"`
}

func NewDisplayEntry(ap AccessPoint) DisplayEntry {
	return DisplayEntry{
		BSSID:        ap.BSSID,
		SSID:         ap.SSID,
		SignalLevel:  ap.SignalLevel,
		FrequencyMHz: ap.FrequencyMHz,
		Capabilities: ap.Capabilities,
		RTTCapable:   ap.RTTCapable,
	}
}

func (e *DisplayEntry) HasDistance() bool {
	return e.DistanceMeters != nil && e.DistanceStdDevMeters != nil
}
