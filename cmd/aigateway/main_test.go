package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
)

// fakeAPI answers chat completions with content, streaming when asked.
func fakeAPI(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"rejected"}}`)
			return
		}

		var body struct {
			Stream bool `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if !body.Stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",`+
				`"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],`+
				`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`, content)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, word := range strings.SplitAfter(content, " ") {
			fmt.Fprintf(w, `data: {"id":"c2","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini",`+
				`"choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`+"\n\n", word)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	t.Setenv("AIGATEWAY_BASE_URL", "")
	t.Setenv("AIGATEWAY_API_KEY", "")

	cfg := fmt.Sprintf(`upstream:
  base_url: %s
  api_key: test-key
models:
  default: gpt-4o-mini
cache:
  enabled: false
retry:
  max_retries: 0
observability:
  log_level: error
`, baseURL)

	path := filepath.Join(t.TempDir(), "aigateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestChatCommand(t *testing.T) {
	srv := fakeAPI(t, "Take with food.", http.StatusOK)
	path := writeConfig(t, srv.URL)

	out, err := execute(t, "", "--config", path, "chat", "How", "should", "I", "take", "ibuprofen?")
	require.NoError(t, err)
	assert.Equal(t, "Take with food.\n", out)
}

func TestChatCommand_PromptFromStdin(t *testing.T) {
	srv := fakeAPI(t, "ok", http.StatusOK)
	path := writeConfig(t, srv.URL)

	out, err := execute(t, "  prompt from a pipe\n", "--config", path, "chat")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = execute(t, "", "--config", path, "chat")
	assert.ErrorContains(t, err, "prompt is required")
}

func TestStructuredCommand(t *testing.T) {
	srv := fakeAPI(t, `{"severity":"minor"}`, http.StatusOK)
	path := writeConfig(t, srv.URL)

	schemaPath := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{"type":"object","required":["severity"]}`), 0o600))

	out, err := execute(t, "", "--config", path, "structured", "--schema", "@"+schemaPath, "check interactions")
	require.NoError(t, err)
	assert.JSONEq(t, `{"severity":"minor"}`, out)
}

func TestStructuredCommand_RejectsNonJSON(t *testing.T) {
	srv := fakeAPI(t, "not json", http.StatusOK)
	path := writeConfig(t, srv.URL)

	_, err := execute(t, "", "--config", path, "structured", "check")
	assert.Equal(t, llmerrors.ErrorTypeValidation, llmerrors.TypeOf(err))
}

func TestStreamCommand(t *testing.T) {
	srv := fakeAPI(t, "Hello streaming world", http.StatusOK)
	path := writeConfig(t, srv.URL)

	out, err := execute(t, "", "--config", path, "stream", "greet me")
	require.NoError(t, err)
	assert.Equal(t, "Hello streaming world\n", out)
}

func TestCommand_SurfacesAuthFailure(t *testing.T) {
	srv := fakeAPI(t, "", http.StatusUnauthorized)
	path := writeConfig(t, srv.URL)

	_, err := execute(t, "", "--config", path, "chat", "hi")
	assert.Equal(t, llmerrors.ErrorTypeAuth, llmerrors.TypeOf(err))
}

func TestCommand_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "chat", "hi")
	assert.Error(t, err)
}
