package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseSchema(t *testing.T) {
	raw, err := ResponseSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "schema must describe properties")
	assert.Contains(t, props, "initialize")
	assert.Contains(t, props, "onchange")
	assert.Contains(t, props, "error")
}

func TestValidateResponse(t *testing.T) {
	valid := []string{
		`{}`,
		`{"initialize":{}}`,
		`{"error":{"message":"compile failed"}}`,
		`{"onchange":{"renderDiagram":[{"content":{"nodes":[{"key":"a"}],"edges":[]}}]}}`,
		`{"onchange":{"renderDiagram":[{"type":{"id":"erd"}}]},"extra":true}`,
	}
	for _, raw := range valid {
		t.Run("valid "+raw, func(t *testing.T) {
			assert.NoError(t, ValidateResponse([]byte(raw)))
		})
	}

	invalid := []string{
		`not json`,
		`[]`,
		`{"onchange":{"renderDiagram":"nope"}}`,
		`{"onchange":{"renderDiagram":[{"type":{"id":5}}]}}`,
		`{"error":{"message":42}}`,
	}
	for _, raw := range invalid {
		t.Run("invalid "+raw, func(t *testing.T) {
			assert.Error(t, ValidateResponse([]byte(raw)))
		})
	}
}
