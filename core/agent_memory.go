package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// AgentSchemaVersion is the current AgentMemory schema version.
const AgentSchemaVersion = 1

// AgentKind tags the AgentMemory variant.
type AgentKind string

// Known agent kinds.
const (
	KindCompetitiveIntel AgentKind = "competitive_intel"
	KindMarketing        AgentKind = "marketing"
	KindCompliance       AgentKind = "compliance"
	KindOperations       AgentKind = "operations"
)

// Valid reports whether k is a known kind.
func (k AgentKind) Valid() bool {
	switch k {
	case KindCompetitiveIntel, KindMarketing, KindCompliance, KindOperations:
		return true
	}
	return false
}

// AgentMemory is the per brand/agent memory. The base fields are shared by all
// kinds; exactly one payload pointer, matching Kind, is set. Extensions carries
// forward-compatible string metadata instead of free-form extra fields.
type AgentMemory struct {
	SchemaVersion int               `json:"schema_version"`
	Kind          AgentKind         `json:"kind"`
	BrandID       string            `json:"brand_id"`
	AgentName     string            `json:"agent_name"`
	LastActive    *time.Time        `json:"last_active,omitempty"`
	CurrentTaskID string            `json:"current_task_id,omitempty"`
	Instructions  string            `json:"instructions,omitempty"`
	Objectives    []Objective       `json:"objectives,omitempty"`
	SharedScope   string            `json:"shared_scope,omitempty"`
	Extensions    map[string]string `json:"extensions,omitempty"`

	Intel      *IntelMemory      `json:"intel,omitempty"`
	Marketing  *MarketingMemory  `json:"marketing,omitempty"`
	Compliance *ComplianceMemory `json:"compliance,omitempty"`
	Operations *OperationsMemory `json:"operations,omitempty"`
}

// NewAgentMemory returns the zero state for a brand/agent pair.
func NewAgentMemory(kind AgentKind, brandID, agentName string) AgentMemory {
	m := AgentMemory{
		SchemaVersion: AgentSchemaVersion,
		Kind:          kind,
		BrandID:       brandID,
		AgentName:     agentName,
	}
	switch kind {
	case KindCompetitiveIntel:
		m.Intel = &IntelMemory{}
	case KindMarketing:
		m.Marketing = &MarketingMemory{}
	case KindCompliance:
		m.Compliance = &ComplianceMemory{}
	case KindOperations:
		m.Operations = &OperationsMemory{}
	}
	return m
}

// Validate checks the tagged variant and its payload.
func (m *AgentMemory) Validate() error {
	if m.SchemaVersion != AgentSchemaVersion {
		return invalid("schema_version", "unsupported version %d", m.SchemaVersion)
	}
	if !m.Kind.Valid() {
		return invalid("kind", "unknown agent kind %q", m.Kind)
	}
	if m.BrandID == "" {
		return invalid("brand_id", "must not be empty")
	}
	if m.AgentName == "" {
		return invalid("agent_name", "must not be empty")
	}
	for k := range m.Extensions {
		if k == "" {
			return invalid("extensions", "empty key")
		}
	}

	set := 0
	for _, present := range []bool{m.Intel != nil, m.Marketing != nil, m.Compliance != nil, m.Operations != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return invalid("kind", "expected exactly one payload for %q, found %d", m.Kind, set)
	}

	switch m.Kind {
	case KindCompetitiveIntel:
		if m.Intel == nil {
			return invalid("intel", "missing payload")
		}
		return m.Intel.validate()
	case KindMarketing:
		if m.Marketing == nil {
			return invalid("marketing", "missing payload")
		}
		return m.Marketing.validate()
	case KindCompliance:
		if m.Compliance == nil {
			return invalid("compliance", "missing payload")
		}
		return m.Compliance.validate()
	default:
		if m.Operations == nil {
			return invalid("operations", "missing payload")
		}
		return m.Operations.validate()
	}
}

// Clone returns a deep copy so agents can build updated memory without
// mutating the caller's value.
func (m AgentMemory) Clone() AgentMemory {
	data, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("core: clone agent memory: %v", err))
	}
	var out AgentMemory
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("core: clone agent memory: %v", err))
	}
	return out
}

// DecodeAgentMemory strictly decodes and validates agent memory. Fields not
// declared by the schema are rejected.
func DecodeAgentMemory(data []byte) (AgentMemory, error) {
	var m AgentMemory
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return AgentMemory{}, &ValidationError{Field: "agent_memory", Message: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return AgentMemory{}, err
	}
	return m, nil
}

// DecodeBrandMemory strictly decodes and validates brand memory.
func DecodeBrandMemory(data []byte) (BrandDomainMemory, error) {
	var b BrandDomainMemory
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return BrandDomainMemory{}, &ValidationError{Field: "brand_memory", Message: err.Error()}
	}
	if err := b.Validate(); err != nil {
		return BrandDomainMemory{}, err
	}
	return b, nil
}

func uniqueIDs(field string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if id == "" {
			return invalid(field, "entry %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return invalid(field, "duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
