package core

import (
	"sort"
	"strings"
	"time"
)

// BrandSchemaVersion is the current BrandDomainMemory schema version.
const BrandSchemaVersion = 1

// ObjectiveStatus is the lifecycle status of a brand objective.
type ObjectiveStatus string

// Objective statuses.
const (
	ObjectiveActive    ObjectiveStatus = "active"
	ObjectiveAchieved  ObjectiveStatus = "achieved"
	ObjectivePaused    ObjectiveStatus = "paused"
	ObjectiveAbandoned ObjectiveStatus = "abandoned"
)

// Valid reports whether s is a known status.
func (s ObjectiveStatus) Valid() bool {
	switch s {
	case ObjectiveActive, ObjectiveAchieved, ObjectivePaused, ObjectiveAbandoned:
		return true
	}
	return false
}

// BrandDomainMemory is the tenant-owned memory every agent reads. It is only
// mutated through explicit repository updates.
type BrandDomainMemory struct {
	SchemaVersion int                   `json:"schema_version"`
	BrandID       string                `json:"brand_id"`
	Profile       BrandProfile          `json:"profile"`
	Objectives    []Objective           `json:"objectives,omitempty"`
	Constraints   Constraints           `json:"constraints"`
	Segments      []AudienceSegment     `json:"segments,omitempty"`
	Experiments   map[string]Experiment `json:"experiments,omitempty"`
	Playbooks     map[string]string     `json:"playbooks,omitempty"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// BrandProfile describes the brand itself.
type BrandProfile struct {
	Name        string   `json:"name"`
	Voice       string   `json:"voice,omitempty"`
	Market      string   `json:"market,omitempty"`
	Website     string   `json:"website,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Objective is a prioritized brand goal. Lower Priority values come first.
type Objective struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Priority    int             `json:"priority,omitempty"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	Owner       string          `json:"owner,omitempty"`
	Status      ObjectiveStatus `json:"status"`
}

// Constraints are brand-wide limits. A nil or empty field means "no constraint".
type Constraints struct {
	Jurisdictions      []string `json:"jurisdictions,omitempty"`
	MaxSpendPerWeek    *float64 `json:"max_spend_per_week,omitempty"`
	MinMarginPct       *float64 `json:"min_margin_pct,omitempty"`
	MaxMessagesPerHour *int     `json:"max_messages_per_hour,omitempty"`
	ProhibitedPhrases  []string `json:"prohibited_phrases,omitempty"`
}

// AudienceSegment is a named customer segment.
type AudienceSegment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// Experiment is an entry in the brand's experiment index.
type Experiment struct {
	ID         string     `json:"id"`
	Hypothesis string     `json:"hypothesis"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

// Validate checks the brand memory against its schema.
func (b *BrandDomainMemory) Validate() error {
	if b.SchemaVersion != BrandSchemaVersion {
		return invalid("schema_version", "unsupported version %d", b.SchemaVersion)
	}
	if strings.TrimSpace(b.BrandID) == "" {
		return invalid("brand_id", "must not be empty")
	}
	if strings.TrimSpace(b.Profile.Name) == "" {
		return invalid("profile.name", "must not be empty")
	}
	seen := make(map[string]struct{}, len(b.Objectives))
	for i, o := range b.Objectives {
		if o.ID == "" {
			return invalid("objectives", "objective %d has no id", i)
		}
		if _, dup := seen[o.ID]; dup {
			return invalid("objectives", "duplicate objective id %q", o.ID)
		}
		seen[o.ID] = struct{}{}
		if !o.Status.Valid() {
			return invalid("objectives", "objective %q has unknown status %q", o.ID, o.Status)
		}
	}
	c := b.Constraints
	if c.MaxSpendPerWeek != nil && *c.MaxSpendPerWeek < 0 {
		return invalid("constraints.max_spend_per_week", "must not be negative")
	}
	if c.MinMarginPct != nil && (*c.MinMarginPct < 0 || *c.MinMarginPct > 100) {
		return invalid("constraints.min_margin_pct", "must be between 0 and 100")
	}
	if c.MaxMessagesPerHour != nil && *c.MaxMessagesPerHour < 0 {
		return invalid("constraints.max_messages_per_hour", "must not be negative")
	}
	for i, s := range b.Segments {
		if s.ID == "" {
			return invalid("segments", "segment %d has no id", i)
		}
	}
	return nil
}

// ActiveObjectives returns active objectives ordered by priority.
func (b *BrandDomainMemory) ActiveObjectives() []Objective {
	var out []Objective
	for _, o := range b.Objectives {
		if o.Status == ObjectiveActive {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// AllowsJurisdiction reports whether the brand may operate in the given
// jurisdiction. An empty jurisdiction list allows everything.
func (c Constraints) AllowsJurisdiction(j string) bool {
	if len(c.Jurisdictions) == 0 {
		return true
	}
	for _, allowed := range c.Jurisdictions {
		if strings.EqualFold(allowed, j) {
			return true
		}
	}
	return false
}

// FindProhibited returns the prohibited phrases contained in text,
// case-insensitively.
func (c Constraints) FindProhibited(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, p := range c.ProhibitedPhrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			hits = append(hits, p)
		}
	}
	return hits
}
