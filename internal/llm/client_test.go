package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_GenerateJSON(t *testing.T) {
	fc := &FakeClient{
		JSONFunc: func(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
			return map[string]any{"keywords": []any{"gravity", "physics"}}, nil
		},
	}
	out, err := fc.GenerateJSON(context.Background(), "sys", "user", "keywords", map[string]any{"type": "object"})
	require.NoError(t, err)
	assert.Equal(t, []any{"gravity", "physics"}, out["keywords"])
}

func TestFakeClient_UnconfiguredReturnsError(t *testing.T) {
	fc := &FakeClient{}
	_, err := fc.GenerateJSON(context.Background(), "sys", "user", "schema", map[string]any{})
	assert.Error(t, err)

	_, err = fc.GenerateText(context.Background(), "sys", "user")
	assert.Error(t, err)
}

func TestExtractOutputText(t *testing.T) {
	resp := responsesResponse{}
	resp.Output = []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	}{
		{Type: "message", Role: "assistant", Content: []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		}{{Type: "output_text", Text: `{"ok":true}`}}},
	}
	assert.Equal(t, `{"ok":true}`, extractOutputText(resp))
}
