package models

import "time"

// KnownAccessPoint is the registry row kept for every access point the
// service has ever seen in a scan. It stores metadata only; distance
// measurements are never written here.
type KnownAccessPoint struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
	DeletedAt    *time.Time `gorm:"index" json:"deleted_at"`
	BSSID        string     `gorm:"uniqueIndex;not null" json:"bssid"`
	SSID         string     `json:"ssid"`
	Capabilities string     `gorm:"type:text" json:"capabilities"`
	RTTCapable   bool       `json:"rtt_capable"`
	SignalLevel  int        `json:"signal_level"`
	FrequencyMHz int        `gorm:"column:frequency_mhz" json:"frequency_mhz"`
	LastSeen     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"last_seen"`
}

func (k *KnownAccessPoint) UpdateFromScan(ap AccessPoint, seenAt time.Time) {
	k.BSSID = ap.BSSID
	k.SSID = ap.SSID
	k.Capabilities = ap.Capabilities
	k.RTTCapable = ap.RTTCapable
	k.SignalLevel = ap.SignalLevel
	k.FrequencyMHz = ap.FrequencyMHz
	k.LastSeen = seenAt
}

func (k *KnownAccessPoint) ToDto() KnownAccessPointDto {
	return KnownAccessPointDto{
		BSSID:        k.BSSID,
		SSID:         k.SSID,
		Capabilities: k.Capabilities,
		RTTCapable:   k.RTTCapable,
		LastSeen:     k.LastSeen,
	}
}

type KnownAccessPointDto struct {
	BSSID        string    `json:"bssid"`
	SSID         string    `json:"ssid"`
	Capabilities string    `json:"capabilities"`
	RTTCapable   bool      `json:"rtt_capable"`
	LastSeen     time.Time `json:"last_seen"`
}
