package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/core"
)

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"tags": []any{"a"}}

	out, err := Apply(in, Update{ArrayUnion: map[string][]any{"tags": {"b", "a"}}})
	require.NoError(t, err)

	assert.Equal(t, []any{"a", "b"}, out["tags"])
	assert.Equal(t, []any{"a"}, in["tags"])
}

func TestApply_UnionOnNonArrayFails(t *testing.T) {
	_, err := Apply(map[string]any{"tags": "a"}, Update{ArrayUnion: map[string][]any{"tags": {"b"}}})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestApply_StructValuesCompareByJSON(t *testing.T) {
	type entry struct {
		ID string `json:"id"`
	}
	out, err := Apply(nil, Update{ArrayUnion: map[string][]any{"log": {entry{ID: "1"}}}})
	require.NoError(t, err)

	out, err = Apply(out, Update{ArrayUnion: map[string][]any{"log": {map[string]any{"id": "1"}, entry{ID: "2"}}}})
	require.NoError(t, err)
	assert.Len(t, out["log"], 2)
}

func TestEncodeDecode(t *testing.T) {
	thread := core.Thread{ID: "t1", PrimaryAgent: "intel", AssignedAgents: []string{"intel"}}
	data, err := Encode(thread)
	require.NoError(t, err)
	assert.Equal(t, "intel", data["primaryAgent"])

	var back core.Thread
	require.NoError(t, Decode(data, &back))
	assert.Equal(t, thread, back)
}
