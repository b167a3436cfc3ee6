package llm

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/internal/models"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRoles(t *testing.T) {
	req := models.NewTextRequest("be terse", "plan my day")
	system, user := splitRoles(req)
	assert.Equal(t, "be terse", system)
	assert.Equal(t, []string{"plan my day"}, user)
	assert.True(t, req.JSONMode)
}

func TestNewClient_RejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), config.LLMConfig{Provider: "parrot", Model: "x"})
	require.Error(t, err)

	_, err = NewClient(context.Background(), config.LLMConfig{Provider: "ollama"})
	require.Error(t, err, "model is required")
}

func TestOllama_GenerateContentAgainstFakeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "planner-model", body["model"])
		assert.Equal(t, "system rules", body["system"])
		assert.Equal(t, "json", body["format"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":    "planner-model",
			"response": `{"schedule":[]}`,
			"done":     true,
		})
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), config.LLMConfig{Provider: "ollama", Model: "planner-model", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := client.GenerateContent(context.Background(), models.NewTextRequest("system rules", "context"))
	require.NoError(t, err)
	assert.Equal(t, `{"schedule":[]}`, resp.Text())
}
