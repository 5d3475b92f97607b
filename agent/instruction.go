package agent

import (
	"strings"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/internal/util"
)

// Provider supplies instruction text derived from brand and agent memory.
type Provider interface {
	Instruction(brand core.BrandDomainMemory, mem core.AgentMemory) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(brand core.BrandDomainMemory, mem core.AgentMemory) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(brand core.BrandDomainMemory, mem core.AgentMemory) (string, error) {
	return f(brand, mem)
}

// Instruction is either a text/template rendered against brand data or a
// dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a template string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(core.BrandDomainMemory, core.AgentMemory) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a template string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text.
func (i Instruction) Resolve(brand core.BrandDomainMemory, mem core.AgentMemory) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(brand, mem)
	}

	return util.RenderTemplate(i.text, templateData(brand, mem))
}

// templateData exposes brand and agent fields to instruction templates.
func templateData(brand core.BrandDomainMemory, mem core.AgentMemory) map[string]any {
	objectives := make([]string, 0, len(brand.Objectives))
	for _, o := range brand.ActiveObjectives() {
		objectives = append(objectives, o.Description)
	}

	return map[string]any{
		"Agent":         mem.AgentName,
		"Kind":          string(mem.Kind),
		"Brand":         brand.Profile.Name,
		"Voice":         brand.Profile.Voice,
		"Market":        brand.Profile.Market,
		"Objectives":    objectives,
		"Jurisdictions": brand.Constraints.Jurisdictions,
		"Prohibited":    brand.Constraints.ProhibitedPhrases,
	}
}

const commonRules = `
{{if .Objectives}}Current objectives, most important first:
{{range .Objectives}}- {{.}}
{{end}}{{end}}{{if .Jurisdictions}}Only operate in: {{join ", " .Jurisdictions}}.
{{end}}{{if .Prohibited}}Never use these phrases: {{join ", " .Prohibited}}.
{{end}}Share durable findings with write_shared_context or save_fact. Hand a thread over with handoff_to_agent when another agent is better suited.`

func defaultInstruction(role string) Instruction {
	var b strings.Builder
	b.WriteString("You are the {{.Agent}} agent for {{.Brand}}")
	b.WriteString("{{if .Market}} in the {{.Market}} market{{end}}. ")
	b.WriteString(role)
	b.WriteString(` Write in a {{default "neutral" .Voice}} voice.`)
	b.WriteString(commonRules)

	return NewInstructionFromText(b.String())
}
