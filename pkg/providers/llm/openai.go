package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lokutor-ai/translation-relay/pkg/providers/vendorerr"
	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

type OpenAILLM struct {
	apiKey     string
	url        string
	model      string
	maxRetries int
}

func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		apiKey:     apiKey,
		url:        "https://api.openai.com/v1/chat/completions",
		model:      model,
		maxRetries: defaultLLMMaxRetries,
	}
}

// SetMaxRetries overrides the default retry budget for transient failures.
func (l *OpenAILLM) SetMaxRetries(n int) {
	l.maxRetries = n
}

func (l *OpenAILLM) Complete(ctx context.Context, messages []relay.ChatMessage) (string, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := vendorerr.Do(ctx, http.DefaultClient, "POST", l.url, headers, body, "openai-llm", l.maxRetries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		respBody, _ := json.Marshal(errResp)
		return "", vendorerr.FromStatus("openai-llm", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", vendorerr.FromStatus("openai-llm", resp.StatusCode, "no choices returned")
	}

	return result.Choices[0].Message.Content, nil
}

func (l *OpenAILLM) Name() string {
	return "openai-llm"
}
