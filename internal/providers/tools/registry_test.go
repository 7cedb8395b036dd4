package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToolset struct {
	defs map[string]Definition
}

func (f *fakeToolset) GetDefinitions() map[string]Definition {
	return f.defs
}

func echoHandler(ctx context.Context, args json.RawMessage) (string, error) {
	return string(args), nil
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry(&fakeToolset{defs: map[string]Definition{
		"zeta":  {Description: "z", Schema: `{"type":"object"}`, Handler: echoHandler},
		"alpha": {Description: "a", Schema: `{"type":"object"}`, Handler: echoHandler},
		"mid":   {Description: "m", Schema: `{"type":"object"}`, Handler: echoHandler},
	}})

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Function.Name)
	assert.Equal(t, "mid", defs[1].Function.Name)
	assert.Equal(t, "zeta", defs[2].Function.Name)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "a", defs[0].Function.Description)
}

func TestRegistryCallDispatches(t *testing.T) {
	r := NewRegistry(&fakeToolset{defs: map[string]Definition{
		"echo": {Description: "echo", Schema: `{"type":"object"}`, Handler: echoHandler},
	}})

	out, err := r.Call(context.Background(), "echo", `{"x":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, out)
}

func TestRegistryCallUnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.Call(context.Background(), "nope", "{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestRegistryCallRejectsMalformedArguments(t *testing.T) {
	r := NewRegistry(&fakeToolset{defs: map[string]Definition{
		"echo": {Description: "echo", Schema: `{"type":"object"}`, Handler: echoHandler},
	}})

	_, err := r.Call(context.Background(), "echo", `{"x":`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestRegistryCallEmptyArgumentsBecomeObject(t *testing.T) {
	r := NewRegistry(&fakeToolset{defs: map[string]Definition{
		"echo": {Description: "echo", Schema: `{"type":"object"}`, Handler: echoHandler},
	}})

	out, err := r.Call(context.Background(), "echo", "")
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}
