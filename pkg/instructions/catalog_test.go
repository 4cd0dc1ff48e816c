package instructions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	assert.Equal(t, "Anbudsassistent", c.AssistantName)
	assert.Equal(t, []string{KeyTenderWriting, KeySummarization, KeyCompetencyMatrix, KeyDefault}, c.Keys())

	for _, key := range c.Keys() {
		e, ok := c.Get(key)
		require.True(t, ok, key)
		assert.NotEmpty(t, e.Instructions, key)
		assert.True(t, e.Retrieval, key)
	}

	e, ok := c.Get(KeyDefault)
	require.True(t, ok)
	assert.Equal(t, "You are a helpful assistant.", e.Instructions)

	e, ok = c.Get(KeyCompetencyMatrix)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(e.Instructions, "Du skal lage en kompetansematrise"))
}

func TestLookup(t *testing.T) {
	c := Default()
	tests := map[string]string{
		"1":   KeyTenderWriting,
		"2":   KeySummarization,
		" 3 ": KeyCompetencyMatrix,
		"0":   KeyDefault,
	}
	for choice, key := range tests {
		e, ok := c.Lookup(choice)
		require.True(t, ok, choice)
		assert.Equal(t, key, e.Key)
	}
	_, ok := c.Lookup("7")
	assert.False(t, ok)
}

func TestAssistantSpec(t *testing.T) {
	spec, err := Default().AssistantSpec(KeyTenderWriting, "gpt-4-turbo-preview")
	require.NoError(t, err)
	assert.Equal(t, "Anbudsassistent", spec.Name)
	assert.Equal(t, "Anbudsassistent", spec.Description)
	assert.Equal(t, "gpt-4-turbo-preview", spec.Model)
	assert.Equal(t, []remote.Tool{remote.ToolFileSearch}, spec.Tools)

	_, err = Default().AssistantSpec("nope", "m")
	require.Error(t, err)
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "a: [b"},
		{"no name", "entries:\n  - key: a\n    instructions: x\n"},
		{"no entries", "assistant_name: A\n"},
		{"missing instructions", "assistant_name: A\nentries:\n  - key: a\n"},
		{"duplicate key", "assistant_name: A\nentries:\n  - key: a\n    instructions: x\n  - key: a\n    instructions: y\n"},
		{"duplicate choice", "assistant_name: A\nentries:\n  - key: a\n    choice: \"1\"\n    instructions: x\n  - key: b\n    choice: \"1\"\n    instructions: y\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestParseWithoutRetrieval(t *testing.T) {
	c, err := Parse([]byte("assistant_name: A\nentries:\n  - key: plain\n    instructions: hi\n"))
	require.NoError(t, err)
	spec, err := c.AssistantSpec("plain", "m")
	require.NoError(t, err)
	assert.Empty(t, spec.Tools)
}
