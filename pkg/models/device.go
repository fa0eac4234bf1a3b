package models

// DeviceKind distinguishes the two device families switchbridge discovers.
type DeviceKind string

const (
	DeviceKindSwitcher DeviceKind = "switcher"
	DeviceKindCamera   DeviceKind = "camera"
)

// DiscoveryMethod indicates how a candidate address was found.
type DiscoveryMethod string

const (
	DiscoveryICMP DiscoveryMethod = "icmp"
	DiscoveryTCP  DiscoveryMethod = "tcp"
	DiscoverymDNS DiscoveryMethod = "mdns"
	DiscoverySSDP DiscoveryMethod = "ssdp"
)

// DiscoveredSwitcher is a confirmed, de-duplicated production switcher.
type DiscoveredSwitcher struct {
	IP          string `json:"ip" example:"10.0.0.5"`
	ModelID     int    `json:"model_id" example:"12"`
	Model       string `json:"model" example:"ATEM Mini Pro"`
	Name        string `json:"name" example:"Studio A"`
	Fingerprint string `json:"-"`
}

// DiscoveredCamera is a confirmed PTZ camera. Only its address is known.
type DiscoveredCamera struct {
	IP string `json:"ip" example:"10.0.0.20"`
}

// ConnectionStatus is the lifecycle state of the active switcher connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)
