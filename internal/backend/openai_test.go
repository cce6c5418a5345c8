package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequest_WireShape(t *testing.T) {
	req := ChatRequest{
		Model:     "sonar-pro",
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens: 4000,
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"sonar-pro","messages":[{"role":"user","content":"hi"}],"max_tokens":4000}`, string(data))
}

func TestChatResponse_Content(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"first choice", `{"choices":[{"message":{"content":" hello "}},{"message":{"content":"second"}}]}`, "hello"},
		{"no choices", `{"choices":[]}`, ""},
		{"blank content", `{"choices":[{"message":{"content":"   "}}]}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ChatResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))
			assert.Equal(t, tt.want, resp.Content())
		})
	}

	var nilResp *ChatResponse
	assert.Equal(t, "", nilResp.Content())
}
