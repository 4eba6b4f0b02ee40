package dispatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/unified"
)

func TestAzureBackendDispatchNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret-key", r.Header.Get("api-key"))
		require.Contains(t, r.URL.Path, "/openai/deployments/gpt-5/responses")

		var body azureRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.False(t, body.Stream)
		require.Equal(t, "gpt-5", body.Model)

		resp := azureResponseBody{ID: "resp-123", Model: "gpt-5", FinishReason: "stop"}
		resp.Output = append(resp.Output, struct {
			Type    string          `json:"type"`
			Text    string          `json:"text,omitempty"`
			ToolID  string          `json:"tool_call_id,omitempty"`
			Name    string          `json:"tool_name,omitempty"`
			ArgsRaw json.RawMessage `json:"tool_args,omitempty"`
		}{Type: "text", Text: "hello back"})
		resp.Usage.InputTokens = 5
		resp.Usage.OutputTokens = 7

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	backend := NewAzureBackend(AzureConfig{
		Endpoint:   srv.URL,
		Deployment: "gpt-5",
		APIVersion: "2025-04-01-preview",
		APIKey:     "secret-key",
	})

	req := &unified.Request{
		Model: "gpt-5",
		Input: []unified.Message{{Role: unified.RoleUser, Blocks: []unified.Block{{Type: unified.BlockText, Text: "hi"}}}},
	}

	resp, err := backend.Dispatch(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, "resp-123", resp.ID)
	require.Equal(t, unified.FinishStop, resp.FinishReason)
	require.Len(t, resp.Output, 1)
	require.Equal(t, "hello back", resp.Output[0].Text)
	require.Equal(t, 5, resp.Usage.InputTokens)
	require.Equal(t, 7, resp.Usage.OutputTokens)
}

func TestAzureBackendDispatchUpstreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	backend := NewAzureBackend(AzureConfig{Endpoint: srv.URL, Deployment: "gpt-5", APIVersion: "v1", APIKey: "k"})
	_, err := backend.Dispatch(t.Context(), &unified.Request{Model: "gpt-5"})
	require.Error(t, err)
}

func TestAzureBackendDispatchStreamParsesSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"type":"response.output_text.delta","delta":"he","output_index":0}` + "\n\n"))
		flusher.Flush()
		_, _ = w.Write([]byte(`data: {"type":"response.output_text.delta","delta":"llo","output_index":0}` + "\n\n"))
		flusher.Flush()
		_, _ = w.Write([]byte(`data: {"type":"response.completed","response_id":"resp-1","finish_reason":"stop","usage":{"input_tokens":1,"output_tokens":2}}` + "\n\n"))
		flusher.Flush()
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	backend := NewAzureBackend(AzureConfig{Endpoint: srv.URL, Deployment: "gpt-5", APIVersion: "v1", APIKey: "k"})
	chunks, err := backend.DispatchStream(t.Context(), &unified.Request{Model: "gpt-5", Stream: true})
	require.NoError(t, err)

	var texts []string
	var completed *unified.StreamChunk
	for chunk := range chunks {
		if chunk.Type == unified.StreamTextDelta {
			texts = append(texts, chunk.TextDelta)
		}
		if chunk.Type == unified.StreamCompleted {
			c := chunk
			completed = &c
		}
	}
	require.Equal(t, []string{"he", "llo"}, texts)
	require.NotNil(t, completed)
	require.Equal(t, "resp-1", completed.ResponseID)
	require.Equal(t, unified.FinishStop, completed.FinishReason)
}

func TestAzureBackendDispatchStreamSynthesizesCompletionOnBodyClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"type":"response.output_text.delta","delta":"he","output_index":0}` + "\n\n"))
		flusher.Flush()
		// Body closes here with no response.completed event and no [DONE].
	}))
	defer srv.Close()

	backend := NewAzureBackend(AzureConfig{Endpoint: srv.URL, Deployment: "gpt-5", APIVersion: "v1", APIKey: "k"})
	chunks, err := backend.DispatchStream(t.Context(), &unified.Request{Model: "gpt-5", Stream: true})
	require.NoError(t, err)

	var completed *unified.StreamChunk
	for chunk := range chunks {
		if chunk.Type == unified.StreamCompleted {
			c := chunk
			completed = &c
		}
	}
	require.NotNil(t, completed)
	require.Equal(t, unified.FinishLength, completed.FinishReason)
}
