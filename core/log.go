package core

import "time"

// Log actions recorded by agents.
const (
	ActionRespond = "respond"
	ActionIdle    = "idle"
	ActionError   = "error"
)

// AgentLogEntry is an immutable audit record, one per completed act.
type AgentLogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	BrandID   string         `json:"brand_id"`
	AgentName string         `json:"agent_name"`
	TargetID  string         `json:"target_id,omitempty"`
	Stimulus  string         `json:"stimulus,omitempty"`
	Action    string         `json:"action"`
	Result    string         `json:"result"`
	NextStep  string         `json:"next_step,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewLogEntry builds a log entry stamped with the clock's time.
func NewLogEntry(clock Clock, brandID, agentName, action, result string) AgentLogEntry {
	return AgentLogEntry{
		ID:        NewID(),
		Timestamp: clock.Now(),
		BrandID:   brandID,
		AgentName: agentName,
		Action:    action,
		Result:    result,
	}
}
