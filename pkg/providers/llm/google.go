package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lokutor-ai/translation-relay/pkg/providers/vendorerr"
	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

type GoogleLLM struct {
	apiKey     string
	url        string
	model      string
	maxRetries int
}

func NewGoogleLLM(apiKey string, model string) *GoogleLLM {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleLLM{
		apiKey:     apiKey,
		url:        "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:      model,
		maxRetries: defaultLLMMaxRetries,
	}
}

// SetMaxRetries overrides the default retry budget for transient failures.
func (l *GoogleLLM) SetMaxRetries(n int) {
	l.maxRetries = n
}

func (l *GoogleLLM) Complete(ctx context.Context, messages []relay.ChatMessage) (string, error) {
	type GoogleMessage struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}

	var googleMessages []GoogleMessage
	for _, m := range messages {
		role := m.Role
		if role == "system" {
			role = "user" // Gemini doesn't always handle system role in the same way in all models
		}
		if role == "assistant" {
			role = "model"
		}
		msg := GoogleMessage{Role: role}
		msg.Parts = append(msg.Parts, struct {
			Text string `json:"text"`
		}{Text: m.Content})
		googleMessages = append(googleMessages, msg)
	}

	payload := map[string]interface{}{
		"contents": googleMessages,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	resp, err := vendorerr.Do(ctx, http.DefaultClient, "POST", l.url+"?key="+l.apiKey, headers, body, "google-llm", l.maxRetries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		respBody, _ := json.Marshal(errResp)
		return "", vendorerr.FromStatus("google-llm", resp.StatusCode, string(respBody))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", vendorerr.FromStatus("google-llm", resp.StatusCode, "no response")
	}

	return result.Candidates[0].Content.Parts[0].Text, nil
}

func (l *GoogleLLM) Name() string {
	return "google-llm"
}
