package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanArgs struct {
	CompetitorID string   `json:"competitor_id" description:"competitor to scan"`
	Limit        int      `json:"limit,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(scanArgs{})

	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "string", props["competitor_id"].(map[string]any)["type"])
	assert.Equal(t, "competitor to scan", props["competitor_id"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
	assert.Equal(t, []string{"competitor_id"}, schema["required"])
}

func TestValidateParameters_RequiredAsStringSlice(t *testing.T) {
	schema := CreateSchema(scanArgs{})

	err := ValidateParameters(map[string]any{"limit": 3.0}, schema)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "competitor_id", verr.Field)
}

func TestValidateParameters_RequiredFromJSON(t *testing.T) {
	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`), &schema))

	assert.Error(t, ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"q": "x"}, schema))
}

func TestValidateParameters_TypesAndEnum(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count":  map[string]any{"type": "integer"},
			"status": map[string]any{"type": "string", "enum": []string{"active", "paused"}},
		},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"count": 2.0, "status": "active"}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"count": 2.5}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"status": "deleted"}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"unknown": true}, schema))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Brand {{.name}} in {{join \", \" .states}}", map[string]any{
		"name":   "Green Leaf",
		"states": []string{"CA", "CO"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Brand Green Leaf in CA, CO", out)

	plain, err := RenderTemplate("no markers & <html>", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers & <html>", plain)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	long := "abcdefghijklmnopqrstuvwxyz"
	out := Truncate(long, 20)
	assert.LessOrEqual(t, len(out), 20)
	assert.Contains(t, out, "[truncated]")
	assert.Equal(t, long, Truncate(long, 0))
}

func TestCreateSchema_EnumTag(t *testing.T) {
	type ticketArgs struct {
		Severity string  `json:"severity" enum:"low,medium,high"`
		Note     *string `json:"note"`
	}

	schema := CreateSchema(&ticketArgs{})
	props := schema["properties"].(map[string]any)
	assert.Equal(t, []string{"low", "medium", "high"}, props["severity"].(map[string]any)["enum"])
	assert.Equal(t, []string{"severity"}, schema["required"])

	err := ValidateParameters(map[string]any{"severity": "urgent"}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of low, medium, high")
}
