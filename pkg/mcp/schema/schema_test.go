package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techne-go/techne/pkg/mcp/schema"
)

func TestObjectMarshalling(t *testing.T) {
	obj := schema.Object{
		Properties: map[string]schema.Schema{
			"name": schema.String{Description: "The name to say hello to"},
		},
		Required: []string{"name"},
	}

	raw, err := json.Marshal(obj)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "object", decoded["type"])
	assert.Equal(t, []any{"name"}, decoded["required"])
}

func TestRoundTrip(t *testing.T) {
	cases := []schema.Schema{
		schema.String{Description: "a string"},
		schema.Integer{},
		schema.Number{},
		schema.Boolean{},
		schema.Array{Items: schema.String{}},
		schema.Null{},
		schema.Object{
			Properties: map[string]schema.Schema{
				"a": schema.Integer{},
				"b": schema.Array{Items: schema.Boolean{}},
			},
			Required: []string{"a"},
		},
	}

	for _, original := range cases {
		raw, err := json.Marshal(original)
		require.NoError(t, err)

		decoded, err := schema.Unmarshal(raw)
		require.NoError(t, err)

		reencoded, err := json.Marshal(decoded)
		require.NoError(t, err)

		assert.JSONEq(t, string(raw), string(reencoded))
	}
}
