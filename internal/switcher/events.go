package switcher

// Event topics published by the coordinator. Payloads are
// models.StreamMessage values.
const (
	TopicStatus       = "switcher.status"
	TopicProgramInput = "switcher.programinput"
)
