package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
)

const chatCompletionsPath = "/chat/completions"

// jsonObjectTransport adds response_format {"type":"json_object"} to chat
// completion requests that do not carry one. The ark chat model config has
// no field for it.
type jsonObjectTransport struct {
	base http.RoundTripper
}

func newJSONObjectTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &jsonObjectTransport{base: base}
}

func (t *jsonObjectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost || req.Body == nil || !strings.HasSuffix(req.URL.Path, chatCompletionsPath) {
		return t.base.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read completion request: %w", err)
	}

	rewritten, err := withJSONObjectFormat(body)
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(rewritten))
	out.ContentLength = int64(len(rewritten))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(rewritten)), nil
	}
	return t.base.RoundTrip(out)
}

func withJSONObjectFormat(body []byte) ([]byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("completion request is not a JSON object: %w", err)
	}
	if _, ok := payload["response_format"]; ok {
		return body, nil
	}

	format, err := json.Marshal(arkmodel.ResponseFormat{Type: arkmodel.ResponseFormatJsonObject})
	if err != nil {
		return nil, fmt.Errorf("failed to encode response format: %w", err)
	}
	payload["response_format"] = format
	return json.Marshal(payload)
}
