package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stdimage "image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/concept-studio/backend/internal/config"
)

func encodedPNG(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testConfig(host string) config.ImageConfig {
	return config.ImageConfig{
		APIKey:      "sk-test",
		Host:        host,
		EngineID:    "stable-diffusion-xl-1024-v1-0",
		Timeout:     5 * time.Second,
		Width:       1024,
		Height:      1024,
		Steps:       30,
		CFGScale:    7,
		StylePreset: "photographic",
	}
}

func TestGenerateSendsRequestAndDecodesArtifact(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generation/stable-diffusion-xl-1024-v1-0/text-to-image", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"artifacts": []map[string]any{
				{"base64": encodedPNG(t, 4, 3), "seed": 42, "finishReason": "SUCCESS"},
				{"base64": "ignored"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), zaptest.NewLogger(t))
	result, err := client.Generate(context.Background(), client.DefaultRequest("a boxy SUV"))
	require.NoError(t, err)

	assert.Equal(t, "png", result.Format)
	assert.Equal(t, 4, result.Width)
	assert.Equal(t, 3, result.Height)
	assert.Equal(t, int64(42), result.Seed)

	assert.Equal(t, []any{map[string]any{"text": "a boxy SUV"}}, received["text_prompts"])
	assert.Equal(t, 7.0, received["cfg_scale"])
	assert.Equal(t, 1024.0, received["height"])
	assert.Equal(t, 1024.0, received["width"])
	assert.Equal(t, 1.0, received["samples"])
	assert.Equal(t, 30.0, received["steps"])
	assert.Equal(t, "photographic", received["style_preset"])
}

func TestGenerateReportsServiceErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"message":"insufficient balance"}`, http.StatusPaymentRequired)
		},
		"no artifacts": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"artifacts":[]}`))
		},
		"bad base64": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"artifacts":[{"base64":"%%%"}]}`))
		},
		"not an image": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"artifacts":[{"base64":"aGVsbG8="}]}`))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			client := NewClient(testConfig(server.URL), nil)
			_, err := client.Generate(context.Background(), client.DefaultRequest("prompt"))
			assert.Error(t, err)
		})
	}
}

func TestGenerateRejectsEmptyPromptAndMissingKey(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:0"), nil)
	_, err := client.Generate(context.Background(), client.DefaultRequest("  "))
	assert.Error(t, err)

	cfg := testConfig("http://127.0.0.1:0")
	cfg.APIKey = ""
	client = NewClient(cfg, nil)
	_, err = client.Generate(context.Background(), client.DefaultRequest("prompt"))
	assert.Error(t, err)
}

func TestGenerateIsOneAttemptBoundedByTimeout(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL)
	cfg.Timeout = 100 * time.Millisecond
	client := NewClient(cfg, nil)

	start := time.Now()
	_, err := client.Generate(context.Background(), client.DefaultRequest("prompt"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(1), hits.Load())
}
