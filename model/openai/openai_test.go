package openai

import (
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/model"
)

func TestBuildMessages(t *testing.T) {
	req := model.Request{
		Instructions: "you are the marketing agent",
		Contents: []core.Content{
			core.NewTextContent(core.RoleUser, "draft a campaign"),
			{Role: core.RoleAssistant, Parts: []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "read_shared_context", Arguments: `{"label":"pricing"}`}},
			}},
			{Role: core.RoleTool, Parts: []core.Part{
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "read_shared_context", Response: "flower under market"}},
			}},
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 4)

	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "c1", msgs[2].OfAssistant.ToolCalls[0].ID)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
}

func TestBuildParams_Effort(t *testing.T) {
	m := NewModelFromClient(nil)

	params := m.buildParams(model.Request{Effort: model.EffortHigh})
	assert.Equal(t, openai.ReasoningEffortHigh, params.ReasoningEffort)
	assert.False(t, params.Temperature.Valid())

	params = m.buildParams(model.Request{})
	assert.Equal(t, openai.ReasoningEffort(""), params.ReasoningEffort)
	assert.Equal(t, 0.7, params.Temperature.Value)
}

func TestBuildParams_Tools(t *testing.T) {
	m := NewModelFromClient(nil)

	params := m.buildParams(model.Request{Tools: []model.ToolDefinition{{
		Type:     "function",
		Function: model.FunctionDefinition{Name: "search_facts", Description: "Search", Parameters: map[string]any{"type": "object"}},
	}}})

	require.Len(t, params.Tools, 1)
	assert.Equal(t, "search_facts", params.Tools[0].Function.Name)
}
