package models

// ProbeResult is the outcome of a single liveness probe.
type ProbeResult struct {
	Address   string `json:"address"`
	Reachable bool   `json:"reachable"`
}

// ScanSummary describes a finished discovery scan.
type ScanSummary struct {
	ID        string     `json:"id" example:"a1b2c3d4-e5f6-7890-abcd-ef1234567890"`
	Kind      DeviceKind `json:"kind" example:"switcher"`
	Subnets   []string   `json:"subnets" example:"10.0.1"`
	StartedAt string     `json:"started_at" example:"2026-01-15T10:30:00Z"`
	EndedAt   string     `json:"ended_at,omitempty" example:"2026-01-15T10:30:12Z"`
	Alive     int        `json:"alive" example:"14"`
	Found     int        `json:"found" example:"1"`
}
