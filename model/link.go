package model

import "fmt"

// LinkKind is the radio protocol family of a communication link.
type LinkKind int

const (
	LinkMAVLink LinkKind = iota
	LinkLoRa
	LinkWiFiDirect
	LinkMilitaryEncrypted
)

func (k LinkKind) String() string {
	switch k {
	case LinkMAVLink:
		return "mavlink"
	case LinkLoRa:
		return "lora"
	case LinkWiFiDirect:
		return "wifi_direct"
	case LinkMilitaryEncrypted:
		return "military_encrypted"
	default:
		return "unknown"
	}
}

// LinkType is a link configuration. Only the fields of the active kind are
// set; build values with MAVLink, LoRa, WiFiDirect or MilitaryEncrypted.
// LinkType values are comparable with ==.
type LinkType struct {
	kind LinkKind

	// MAVLink
	Version             uint8
	HeartbeatIntervalMs uint32

	// LoRa
	FrequencyMHz    uint32
	SpreadingFactor uint8

	// WiFiDirect
	BandwidthMbps uint32
	Channel       uint8

	// MilitaryEncrypted. The cipher suite is descriptive only.
	KeyRotationMinutes uint32
	CipherSuite        string
}

func MAVLink(version uint8, heartbeatIntervalMs uint32) LinkType {
	return LinkType{kind: LinkMAVLink, Version: version, HeartbeatIntervalMs: heartbeatIntervalMs}
}

func LoRa(frequencyMHz uint32, spreadingFactor uint8) LinkType {
	return LinkType{kind: LinkLoRa, FrequencyMHz: frequencyMHz, SpreadingFactor: spreadingFactor}
}

func WiFiDirect(bandwidthMbps uint32, channel uint8) LinkType {
	return LinkType{kind: LinkWiFiDirect, BandwidthMbps: bandwidthMbps, Channel: channel}
}

func MilitaryEncrypted(keyRotationMinutes uint32, cipherSuite string) LinkType {
	return LinkType{kind: LinkMilitaryEncrypted, KeyRotationMinutes: keyRotationMinutes, CipherSuite: cipherSuite}
}

// Kind reports the protocol family.
func (l LinkType) Kind() LinkKind { return l.kind }

func (l LinkType) String() string {
	switch l.kind {
	case LinkMAVLink:
		return fmt.Sprintf("mavlink v%d (heartbeat %dms)", l.Version, l.HeartbeatIntervalMs)
	case LinkLoRa:
		return fmt.Sprintf("lora %dMHz SF%d", l.FrequencyMHz, l.SpreadingFactor)
	case LinkWiFiDirect:
		return fmt.Sprintf("wifi-direct %dMbps ch%d", l.BandwidthMbps, l.Channel)
	case LinkMilitaryEncrypted:
		return fmt.Sprintf("military %s (rotate %dmin)", l.CipherSuite, l.KeyRotationMinutes)
	default:
		return "unknown link"
	}
}
