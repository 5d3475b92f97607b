package core

// Effect is a side effect produced by a tool call. Tools never perform
// cross-agent work directly; the runner dispatches effects after the step is
// recorded. Concrete effects implement the unexported isEffect marker.
type Effect interface {
	isEffect()
	EffectKind() string
}

// HandoffEffect asks the coordinator to transfer a thread.
type HandoffEffect struct {
	ThreadID  string `json:"thread_id"`
	ToAgent   string `json:"to_agent"`
	Reason    string `json:"reason"`
	MessageID string `json:"message_id,omitempty"`
}

func (HandoffEffect) isEffect() {}

// EffectKind implements Effect.
func (HandoffEffect) EffectKind() string { return "handoff" }

// MessageEffect delivers a message to another agent's mailbox.
type MessageEffect struct {
	BrandID string `json:"brand_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

func (MessageEffect) isEffect() {}

// EffectKind implements Effect.
func (MessageEffect) EffectKind() string { return "message" }

// AlertEffect raises a pricing alert in another agent's memory.
type AlertEffect struct {
	BrandID string       `json:"brand_id"`
	ToAgent string       `json:"to_agent"`
	Alert   PricingAlert `json:"alert"`
}

func (AlertEffect) isEffect() {}

// EffectKind implements Effect.
func (AlertEffect) EffectKind() string { return "alert" }

// ReviewEffect submits content to a compliance agent's review queue.
type ReviewEffect struct {
	BrandID string     `json:"brand_id"`
	ToAgent string     `json:"to_agent"`
	Item    ReviewItem `json:"item"`
}

func (ReviewEffect) isEffect() {}

// EffectKind implements Effect.
func (ReviewEffect) EffectKind() string { return "review" }
