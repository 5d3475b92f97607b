package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tgt, err := ParseTarget("competitor_refresh:comp-7")
	require.NoError(t, err)
	assert.Equal(t, Target{Kind: TargetCompetitorRefresh, ID: "comp-7"}, tgt)
	assert.Equal(t, "competitor_refresh:comp-7", tgt.String())

	tgt, err = ParseTarget("user_request")
	require.NoError(t, err)
	assert.Equal(t, UserRequest(), tgt)
	assert.Equal(t, "user_request", tgt.String())
}

func TestParseTarget_Rejects(t *testing.T) {
	for _, in := range []string{"discovery:abc", "", "competitor_refresh", "user_request:1"} {
		_, err := ParseTarget(in)
		assert.ErrorIs(t, err, ErrUnknownTarget, in)
	}
}

func TestContentHelpers(t *testing.T) {
	c := Content{Role: RoleAssistant, Parts: []Part{
		TextPart{Text: "checking "},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "1", Name: "search_web"}},
		TextPart{Text: "now"},
	}}
	assert.Equal(t, "checking now", c.Text())
	require.Len(t, c.FunctionCalls(), 1)
	assert.Equal(t, "search_web", c.FunctionCalls()[0].Name)
}
