package models

// StatusProgramInput is the status value carried by program input messages.
const StatusProgramInput = "programinput"

// StreamMessage is the wire shape of every event streamed to subscribers.
// Connection messages carry Status and IP; program input messages carry
// Status "programinput", Input and Label.
type StreamMessage struct {
	Status string `json:"status"`
	IP     string `json:"ip,omitempty"`
	Input  *int   `json:"input,omitempty"`
	Label  string `json:"label,omitempty"`
}

// StatusMessage builds a connection status message.
func StatusMessage(status, ip string) StreamMessage {
	return StreamMessage{Status: status, IP: ip}
}

// ProgramInputMessage builds a program input change message.
func ProgramInputMessage(input int, label string) StreamMessage {
	return StreamMessage{Status: StatusProgramInput, Input: &input, Label: label}
}

// IsProgramInput reports whether m is a program input message.
func (m StreamMessage) IsProgramInput() bool {
	return m.Status == StatusProgramInput
}
