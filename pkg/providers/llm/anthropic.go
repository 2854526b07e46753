package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lokutor-ai/translation-relay/pkg/providers/vendorerr"
	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// defaultLLMMaxRetries bounds the retries Do applies to a 5xx or transport
// failure before an LLM call gives up and lets the caller (the context
// resolver or the LLM-backed translate provider) fail that one call.
const defaultLLMMaxRetries = 2

type AnthropicLLM struct {
	apiKey     string
	url        string
	model      string
	maxRetries int
}

func NewAnthropicLLM(apiKey string, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicLLM{
		apiKey:     apiKey,
		url:        "https://api.anthropic.com/v1/messages",
		model:      model,
		maxRetries: defaultLLMMaxRetries,
	}
}

// SetMaxRetries overrides the default retry budget for transient failures.
func (l *AnthropicLLM) SetMaxRetries(n int) {
	l.maxRetries = n
}

func (l *AnthropicLLM) Complete(ctx context.Context, messages []relay.ChatMessage) (string, error) {
	
	var system string
	var anthropicMessages []map[string]string

	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
		} else {
			anthropicMessages = append(anthropicMessages, map[string]string{
				"role":    msg.Role,
				"content": msg.Content,
			})
		}
	}

	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   anthropicMessages,
		"max_tokens": 1024,
	}
	if system != "" {
		payload["system"] = system
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("x-api-key", l.apiKey)
	headers.Set("anthropic-version", "2023-06-01")

	resp, err := vendorerr.Do(ctx, http.DefaultClient, "POST", l.url, headers, body, "anthropic-llm", l.maxRetries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		body, _ := json.Marshal(errResp)
		return "", vendorerr.FromStatus("anthropic-llm", resp.StatusCode, string(body))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Content) == 0 {
		return "", vendorerr.FromStatus("anthropic-llm", resp.StatusCode, "no content returned")
	}

	return result.Content[0].Text, nil
}

func (l *AnthropicLLM) Name() string {
	return "anthropic-llm"
}
