package core

import (
	"fmt"
	"strings"
)

// TargetKind enumerates the actions an agent can be oriented toward.
type TargetKind string

// Target kinds.
const (
	TargetUserRequest       TargetKind = "user_request"
	TargetCompetitorRefresh TargetKind = "competitor_refresh"
	TargetGapReview         TargetKind = "gap_review"
	TargetPricingAlert      TargetKind = "pricing_alert"
	TargetCampaignReview    TargetKind = "campaign_review"
	TargetContentReview     TargetKind = "content_review"
	TargetTicketTriage      TargetKind = "ticket_triage"
)

var knownTargets = map[TargetKind]bool{
	TargetUserRequest:       false,
	TargetCompetitorRefresh: true,
	TargetGapReview:         true,
	TargetPricingAlert:      true,
	TargetCampaignReview:    true,
	TargetContentReview:     true,
	TargetTicketTriage:      true,
}

// Target is the decoded result of orient: a kind plus the id of the memory
// entry it refers to. User requests carry no id.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
}

// UserRequest is the target chosen whenever a stimulus is present.
func UserRequest() Target { return Target{Kind: TargetUserRequest} }

// String renders the wire token "kind" or "kind:id".
func (t Target) String() string {
	if t.ID == "" {
		return string(t.Kind)
	}
	return string(t.Kind) + ":" + t.ID
}

// ParseTarget decodes a wire token. Unknown kinds and missing or unexpected
// ids fail with ErrUnknownTarget.
func ParseTarget(s string) (Target, error) {
	kind, id, _ := strings.Cut(strings.TrimSpace(s), ":")
	needsID, ok := knownTargets[TargetKind(kind)]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownTarget, s)
	}
	if needsID && id == "" {
		return Target{}, fmt.Errorf("%w: %q requires an id", ErrUnknownTarget, s)
	}
	if !needsID && id != "" {
		return Target{}, fmt.Errorf("%w: %q takes no id", ErrUnknownTarget, s)
	}
	return Target{Kind: TargetKind(kind), ID: id}, nil
}
