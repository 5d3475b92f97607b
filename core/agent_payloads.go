package core

import "time"

// MaxSnapshotsPerCompetitor bounds the menu snapshot history kept per competitor.
const MaxSnapshotsPerCompetitor = 5

// IntelMemory is the competitive-intel agent payload.
type IntelMemory struct {
	Watchlist     []Competitor   `json:"watchlist,omitempty"`
	MenuSnapshots []MenuSnapshot `json:"menu_snapshots,omitempty"`
	OpenGaps      []Gap          `json:"open_gaps,omitempty"`
}

// Competitor is a watched competitor.
type Competitor struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url,omitempty"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}

// MenuSnapshot captures a competitor's menu at a point in time.
type MenuSnapshot struct {
	CompetitorID string     `json:"competitor_id"`
	CapturedAt   time.Time  `json:"captured_at"`
	Items        []MenuItem `json:"items,omitempty"`
}

// MenuItem is a priced product on a menu.
type MenuItem struct {
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price"`
}

// GapStatus tracks an opportunity gap.
type GapStatus string

// Gap statuses.
const (
	GapOpen     GapStatus = "open"
	GapReviewed GapStatus = "reviewed"
)

// Gap is a market opportunity spotted by the intel agent.
type Gap struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	CompetitorID string    `json:"competitor_id,omitempty"`
	Status       GapStatus `json:"status"`
	OpenedAt     time.Time `json:"opened_at"`
	Notes        string    `json:"notes,omitempty"`
}

func (p *IntelMemory) validate() error {
	ids := make([]string, len(p.Watchlist))
	for i, c := range p.Watchlist {
		ids[i] = c.ID
	}
	if err := uniqueIDs("intel.watchlist", ids); err != nil {
		return err
	}
	gapIDs := make([]string, len(p.OpenGaps))
	for i, g := range p.OpenGaps {
		gapIDs[i] = g.ID
		if g.Status != GapOpen && g.Status != GapReviewed {
			return invalid("intel.open_gaps", "gap %q has unknown status %q", g.ID, g.Status)
		}
	}
	if err := uniqueIDs("intel.open_gaps", gapIDs); err != nil {
		return err
	}
	for _, s := range p.MenuSnapshots {
		if s.CompetitorID == "" {
			return invalid("intel.menu_snapshots", "snapshot without competitor id")
		}
	}
	return nil
}

// AddSnapshot appends a snapshot and keeps at most MaxSnapshotsPerCompetitor
// entries for that competitor, dropping the oldest.
func (p *IntelMemory) AddSnapshot(s MenuSnapshot) {
	p.MenuSnapshots = append(p.MenuSnapshots, s)
	count := 0
	for _, existing := range p.MenuSnapshots {
		if existing.CompetitorID == s.CompetitorID {
			count++
		}
	}
	if count <= MaxSnapshotsPerCompetitor {
		return
	}
	drop := count - MaxSnapshotsPerCompetitor
	kept := p.MenuSnapshots[:0]
	for _, existing := range p.MenuSnapshots {
		if existing.CompetitorID == s.CompetitorID && drop > 0 {
			drop--
			continue
		}
		kept = append(kept, existing)
	}
	p.MenuSnapshots = kept
}

// LatestSnapshot returns the most recent snapshot for a competitor.
func (p *IntelMemory) LatestSnapshot(competitorID string) (MenuSnapshot, bool) {
	var (
		latest MenuSnapshot
		found  bool
	)
	for _, s := range p.MenuSnapshots {
		if s.CompetitorID == competitorID && (!found || s.CapturedAt.After(latest.CapturedAt)) {
			latest, found = s, true
		}
	}
	return latest, found
}

// CampaignStatus is a marketing campaign lifecycle status.
type CampaignStatus string

// Campaign statuses.
const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignLive      CampaignStatus = "live"
	CampaignDone      CampaignStatus = "done"
)

// MarketingMemory is the marketing agent payload.
type MarketingMemory struct {
	Campaigns []Campaign     `json:"campaigns,omitempty"`
	Alerts    []PricingAlert `json:"alerts,omitempty"`
}

// Campaign is a marketing campaign.
type Campaign struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Channel   string         `json:"channel,omitempty"`
	SegmentID string         `json:"segment_id,omitempty"`
	Status    CampaignStatus `json:"status"`
	StartsAt  *time.Time     `json:"starts_at,omitempty"`
	Copy      string         `json:"copy,omitempty"`
	Notes     string         `json:"notes,omitempty"`
}

// PricingAlert is a pricing threat raised by the pipeline analyzer.
type PricingAlert struct {
	ID              string    `json:"id"`
	Product         string    `json:"product"`
	Competitor      string    `json:"competitor,omitempty"`
	OurPrice        float64   `json:"our_price"`
	CompetitorPrice float64   `json:"competitor_price"`
	ReceivedAt      time.Time `json:"received_at"`
	Handled         bool      `json:"handled"`
}

func (p *MarketingMemory) validate() error {
	ids := make([]string, len(p.Campaigns))
	for i, c := range p.Campaigns {
		ids[i] = c.ID
		switch c.Status {
		case CampaignDraft, CampaignScheduled, CampaignLive, CampaignDone:
		default:
			return invalid("marketing.campaigns", "campaign %q has unknown status %q", c.ID, c.Status)
		}
	}
	if err := uniqueIDs("marketing.campaigns", ids); err != nil {
		return err
	}
	alertIDs := make([]string, len(p.Alerts))
	for i, a := range p.Alerts {
		alertIDs[i] = a.ID
	}
	return uniqueIDs("marketing.alerts", alertIDs)
}

// ReviewStatus is the compliance review status.
type ReviewStatus string

// Review statuses.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ComplianceMemory is the compliance agent payload.
type ComplianceMemory struct {
	ReviewQueue []ReviewItem `json:"review_queue,omitempty"`
}

// ReviewItem is a piece of content awaiting compliance review.
type ReviewItem struct {
	ID           string       `json:"id"`
	Content      string       `json:"content"`
	Jurisdiction string       `json:"jurisdiction,omitempty"`
	Status       ReviewStatus `json:"status"`
	Findings     []string     `json:"findings,omitempty"`
	SubmittedAt  time.Time    `json:"submitted_at"`
	ReviewedAt   *time.Time   `json:"reviewed_at,omitempty"`
}

func (p *ComplianceMemory) validate() error {
	ids := make([]string, len(p.ReviewQueue))
	for i, r := range p.ReviewQueue {
		ids[i] = r.ID
		switch r.Status {
		case ReviewPending, ReviewApproved, ReviewRejected:
		default:
			return invalid("compliance.review_queue", "item %q has unknown status %q", r.ID, r.Status)
		}
	}
	return uniqueIDs("compliance.review_queue", ids)
}

// Severity orders operations tickets.
type Severity string

// Ticket severities.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns a sortable weight, higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// TicketStatus is an operations ticket lifecycle status.
type TicketStatus string

// Ticket statuses.
const (
	TicketOpen    TicketStatus = "open"
	TicketTriaged TicketStatus = "triaged"
	TicketClosed  TicketStatus = "closed"
)

// OperationsMemory is the operations agent payload.
type OperationsMemory struct {
	Tickets []Ticket `json:"tickets,omitempty"`
}

// Ticket is an operations issue.
type Ticket struct {
	ID       string       `json:"id"`
	Summary  string       `json:"summary"`
	Severity Severity     `json:"severity"`
	Status   TicketStatus `json:"status"`
	OpenedAt time.Time    `json:"opened_at"`
	Assignee string       `json:"assignee,omitempty"`
	Notes    string       `json:"notes,omitempty"`
}

func (p *OperationsMemory) validate() error {
	ids := make([]string, len(p.Tickets))
	for i, t := range p.Tickets {
		ids[i] = t.ID
		if t.Severity.Rank() == 0 {
			return invalid("operations.tickets", "ticket %q has unknown severity %q", t.ID, t.Severity)
		}
		switch t.Status {
		case TicketOpen, TicketTriaged, TicketClosed:
		default:
			return invalid("operations.tickets", "ticket %q has unknown status %q", t.ID, t.Status)
		}
	}
	return uniqueIDs("operations.tickets", ids)
}
