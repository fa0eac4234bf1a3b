package recon

// Event topics published by the recon module. Payloads are
// models.ScanSummary values.
const (
	TopicScanStarted   = "recon.scan.started"
	TopicScanCompleted = "recon.scan.completed"
)
