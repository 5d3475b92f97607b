package core

import "time"

// AgentHandoff records a transfer of thread ownership. Immutable once created.
type AgentHandoff struct {
	ID        string    `json:"id"`
	FromAgent string    `json:"fromAgent"`
	ToAgent   string    `json:"toAgent"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"messageId,omitempty"`
}

// Thread is a conversation owned by exactly one primary agent.
type Thread struct {
	ID             string         `json:"id"`
	BrandID        string         `json:"brandId,omitempty"`
	PrimaryAgent   string         `json:"primaryAgent"`
	AssignedAgents []string       `json:"assignedAgents,omitempty"`
	HandoffHistory []AgentHandoff `json:"handoffHistory,omitempty"`
}
