package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/memory"
)

// Shared tool names.
const (
	ReadSharedContext  = "read_shared_context"
	WriteSharedContext = "write_shared_context"
	SendAgentMessage   = "send_agent_message"
	CheckAgentMessages = "check_agent_messages"
	SaveFact           = "save_fact"
	SearchFacts        = "search_facts"
	HandoffToAgent     = "handoff_to_agent"
)

// inboxPreview bounds how many messages check_agent_messages returns.
const inboxPreview = 10

// SharedDescriptors returns the descriptors every agent gets in addition to
// its own.
func SharedDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        ReadSharedContext,
			Description: "Read a shared context block visible to all agents of this brand. Omit label to list every block.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"label": map[string]any{"type": "string", "description": "Block label, e.g. pricing or launch_calendar"},
				},
			},
		},
		{
			Name:        WriteSharedContext,
			Description: "Write or replace a shared context block so other agents can see your findings.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"label": map[string]any{"type": "string", "description": "Block label"},
					"value": map[string]any{"type": "string", "description": "Block content (max 4000 characters)"},
				},
				"required": []string{"label", "value"},
			},
		},
		{
			Name:        SendAgentMessage,
			Description: "Send a message to another agent of this brand.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"to":      map[string]any{"type": "string", "description": "Recipient agent name"},
					"subject": map[string]any{"type": "string"},
					"body":    map[string]any{"type": "string"},
				},
				"required": []string{"to", "body"},
			},
		},
		{
			Name:        CheckAgentMessages,
			Description: "List the most recent messages other agents sent you.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        SaveFact,
			Description: "Persist a fact so any agent of this brand can recall it later.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{"type": "string"},
					"source":  map[string]any{"type": "string", "description": "Where the fact came from"},
					"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"content"},
			},
		},
		{
			Name:        SearchFacts,
			Description: "Search previously saved facts.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
					"limit": map[string]any{"type": "integer", "description": "Maximum results (default 5)"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        HandoffToAgent,
			Description: "Hand the current conversation thread to another agent better suited to continue it.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"to_agent":  map[string]any{"type": "string"},
					"reason":    map[string]any{"type": "string"},
					"thread_id": map[string]any{"type": "string", "description": "Defaults to the current thread"},
				},
				"required": []string{"to_agent", "reason"},
			},
		},
	}
}

// SharedDeps are the collaborators backing the shared tool set. Nil members
// leave the corresponding tools unmapped.
type SharedDeps struct {
	Shared  *memory.SharedContext
	Mailbox *memory.Mailbox
	Facts   memory.FactStore
}

// SharedShims builds the handlers for SharedDescriptors over deps.
func SharedShims(deps SharedDeps) Shims {
	shims := Shims{
		SendAgentMessage: sendAgentMessage,
		HandoffToAgent:   handoffToAgent,
	}

	if deps.Shared != nil {
		shims[ReadSharedContext] = Safe(ReadSharedContext, readSharedContext(deps.Shared))
		shims[WriteSharedContext] = Safe(WriteSharedContext, writeSharedContext(deps.Shared))
	}

	if deps.Mailbox != nil {
		shims[CheckAgentMessages] = Safe(CheckAgentMessages, checkAgentMessages(deps.Mailbox))
	}

	if deps.Facts != nil {
		shims[SaveFact] = Safe(SaveFact, saveFact(deps.Facts))
		shims[SearchFacts] = Safe(SearchFacts, searchFacts(deps.Facts))
	}

	return shims
}

func readSharedContext(shared *memory.SharedContext) Handler {
	return func(tc *core.ToolContext, args map[string]any) (Result, error) {
		label := StringArg(args, "label")
		if label == "" {
			blocks, err := shared.List(tc.Context(), tc.BrandID())
			if err != nil {
				return Result{}, err
			}

			return Output(blocks), nil
		}

		block, err := shared.Read(tc.Context(), tc.BrandID(), label)
		if errors.Is(err, core.ErrNotFound) {
			return Output(fmt.Sprintf("no shared context block named %q", label)), nil
		}
		if err != nil {
			return Result{}, err
		}

		return Output(block), nil
	}
}

func writeSharedContext(shared *memory.SharedContext) Handler {
	return func(tc *core.ToolContext, args map[string]any) (Result, error) {
		block, err := shared.Write(tc.Context(), tc.BrandID(), StringArg(args, "label"), StringArg(args, "value"), tc.AgentName())
		if err != nil {
			return Result{}, err
		}

		return Output(map[string]any{"written": true, "label": block.Label}), nil
	}
}

// sendAgentMessage only emits an effect; delivery and rate limiting happen in
// the runner.
func sendAgentMessage(tc *core.ToolContext, args map[string]any) (Result, error) {
	to := StringArg(args, "to")
	if to == tc.AgentName() {
		return Result{}, NewToolError(SendAgentMessage, "cannot message yourself", CodeValidation)
	}

	return Result{
		Output: fmt.Sprintf("message to %s queued", to),
		Effects: []core.Effect{core.MessageEffect{
			BrandID: tc.BrandID(),
			From:    tc.AgentName(),
			To:      to,
			Subject: StringArg(args, "subject"),
			Body:    StringArg(args, "body"),
		}},
	}, nil
}

func checkAgentMessages(mb *memory.Mailbox) Handler {
	return func(tc *core.ToolContext, _ map[string]any) (Result, error) {
		msgs, err := mb.Inbox(tc.Context(), tc.BrandID(), tc.AgentName())
		if err != nil {
			return Result{}, err
		}

		if len(msgs) == 0 {
			return Output("no messages"), nil
		}

		if len(msgs) > inboxPreview {
			msgs = msgs[len(msgs)-inboxPreview:]
		}

		return Output(msgs), nil
	}
}

func saveFact(facts memory.FactStore) Handler {
	return func(tc *core.ToolContext, args map[string]any) (Result, error) {
		source := StringArg(args, "source")
		if source == "" {
			source = tc.AgentName()
		}

		f, err := facts.SaveFact(tc.Context(), memory.Fact{
			BrandID: tc.BrandID(),
			Content: StringArg(args, "content"),
			Source:  source,
			Tags:    StringSliceArg(args, "tags"),
		})
		if err != nil {
			return Result{}, err
		}

		return Output(map[string]any{"saved": true, "id": f.ID}), nil
	}
}

func searchFacts(facts memory.FactStore) Handler {
	return func(tc *core.ToolContext, args map[string]any) (Result, error) {
		found, err := facts.SearchFacts(tc.Context(), tc.BrandID(), StringArg(args, "query"), IntArg(args, "limit", 5))
		if err != nil {
			return Result{}, err
		}

		if len(found) == 0 {
			return Output("no matching facts"), nil
		}

		return Output(found), nil
	}
}

func handoffToAgent(tc *core.ToolContext, args map[string]any) (Result, error) {
	threadID := StringArg(args, "thread_id")
	if threadID == "" {
		threadID = tc.ThreadID()
	}

	if threadID == "" {
		return Result{}, NewToolError(HandoffToAgent, "no conversation thread to hand off", CodeValidation)
	}

	to := StringArg(args, "to_agent")

	return Result{
		Output: fmt.Sprintf("handoff of thread %s to %s requested", threadID, to),
		Effects: []core.Effect{core.HandoffEffect{
			ThreadID: threadID,
			ToAgent:  to,
			Reason:   StringArg(args, "reason"),
		}},
	}, nil
}
