package testutil

import (
	"time"

	"github.com/hupe1980/brandmesh/core"
)

// Epoch is the fixed reference time used by tests.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// BrandBuilder helps construct brand memory with fluent chaining for tests.
// Example:
//
//	brand := NewBrandBuilder("brand-1").Objective("o1", "win CA").Prohibit("cure").Build()
type BrandBuilder struct {
	brand core.BrandDomainMemory
}

// NewBrandBuilder starts a valid brand named after its id.
func NewBrandBuilder(id string) *BrandBuilder {
	return &BrandBuilder{brand: core.BrandDomainMemory{
		SchemaVersion: core.BrandSchemaVersion,
		BrandID:       id,
		Profile:       core.BrandProfile{Name: "Brand " + id, Voice: "friendly", Market: "CA"},
		UpdatedAt:     Epoch,
	}}
}

// Objective appends an active objective (chainable).
func (b *BrandBuilder) Objective(id, description string) *BrandBuilder {
	b.brand.Objectives = append(b.brand.Objectives, core.Objective{
		ID:          id,
		Description: description,
		Priority:    len(b.brand.Objectives) + 1,
		Status:      core.ObjectiveActive,
	})
	return b
}

// Jurisdictions restricts the brand to the given jurisdictions (chainable).
func (b *BrandBuilder) Jurisdictions(js ...string) *BrandBuilder {
	b.brand.Constraints.Jurisdictions = append(b.brand.Constraints.Jurisdictions, js...)
	return b
}

// Prohibit adds prohibited phrases (chainable).
func (b *BrandBuilder) Prohibit(phrases ...string) *BrandBuilder {
	b.brand.Constraints.ProhibitedPhrases = append(b.brand.Constraints.ProhibitedPhrases, phrases...)
	return b
}

// MessagesPerHour sets the message-rate constraint (chainable).
func (b *BrandBuilder) MessagesPerHour(n int) *BrandBuilder {
	b.brand.Constraints.MaxMessagesPerHour = &n
	return b
}

// Build returns the brand memory.
func (b *BrandBuilder) Build() core.BrandDomainMemory {
	return b.brand
}
