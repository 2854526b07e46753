package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lokutor-ai/translation-relay/pkg/providers/vendorerr"
	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

type AssemblyAISTT struct {
	apiKey     string
	maxRetries int
}

func NewAssemblyAISTT(apiKey string) *AssemblyAISTT {
	return &AssemblyAISTT{
		apiKey:     apiKey,
		maxRetries: defaultSTTMaxRetries,
	}
}

// SetMaxRetries overrides the default retry budget for transient failures.
func (s *AssemblyAISTT) SetMaxRetries(n int) {
	s.maxRetries = n
}

func (s *AssemblyAISTT) Name() string {
	return "assemblyai-stt"
}

func (s *AssemblyAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang relay.Language) (string, error) {
	
	uploadURL, err := s.upload(ctx, audioPCM)
	if err != nil {
		return "", err
	}

	
	transcriptID, err := s.submit(ctx, uploadURL, lang)
	if err != nil {
		return "", err
	}

	
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
			text, status, err := s.getTranscript(ctx, transcriptID)
			if err != nil {
				return "", err
			}
			if status == "completed" {
				return text, nil
			}
			if status == "error" {
				return "", fmt.Errorf("assemblyai transcription failed")
			}
		}
	}
}

func (s *AssemblyAISTT) upload(ctx context.Context, audioPCM []byte) (string, error) {
	headers := http.Header{}
	headers.Set("Authorization", s.apiKey)

	resp, err := vendorerr.Do(ctx, http.DefaultClient, "POST", "https://api.assemblyai.com/v2/upload", headers, audioPCM, "assemblyai-stt", s.maxRetries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", vendorerr.FromStatus("assemblyai-stt", resp.StatusCode, string(respBody))
	}

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.UploadURL, nil
}

func (s *AssemblyAISTT) submit(ctx context.Context, uploadURL string, lang relay.Language) (string, error) {
	payload := map[string]interface{}{
		"audio_url": uploadURL,
	}
	if lang != "" {
		payload["language_code"] = string(lang)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Authorization", s.apiKey)
	headers.Set("Content-Type", "application/json")

	resp, err := vendorerr.Do(ctx, http.DefaultClient, "POST", "https://api.assemblyai.com/v2/transcript", headers, body, "assemblyai-stt", s.maxRetries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", vendorerr.FromStatus("assemblyai-stt", resp.StatusCode, string(respBody))
	}

	var result struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.ID, nil
}

func (s *AssemblyAISTT) getTranscript(ctx context.Context, id string) (string, string, error) {
	headers := http.Header{}
	headers.Set("Authorization", s.apiKey)

	resp, err := vendorerr.Do(ctx, http.DefaultClient, "GET", "https://api.assemblyai.com/v2/transcript/"+id, headers, nil, "assemblyai-stt", s.maxRetries)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", "", vendorerr.FromStatus("assemblyai-stt", resp.StatusCode, string(respBody))
	}

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.Text, result.Status, nil
}
