package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/translation-relay/pkg/audio"
	"github.com/lokutor-ai/translation-relay/pkg/providers/vendorerr"
	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// defaultSTTMaxRetries bounds the retries Do applies to a 5xx or transport
// failure from a batch STT call; a streaming session (deepgram.go's
// StreamTranscribe) has no equivalent since it holds one long-lived
// connection rather than issuing a call per segment.
const defaultSTTMaxRetries = 2

type GroqSTT struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
	maxRetries int
}

func NewGroqSTT(apiKey string, model string) *GroqSTT {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqSTT{
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		sampleRate: 16000,
		maxRetries: defaultSTTMaxRetries,
	}
}

func (s *GroqSTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

// SetMaxRetries overrides the default retry budget for transient failures.
func (s *GroqSTT) SetMaxRetries(n int) {
	s.maxRetries = n
}

func (s *GroqSTT) Transcribe(ctx context.Context, audioPCM []byte, lang relay.Language) (string, error) {
	wavData := audio.NewWavBuffer(audioPCM, s.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", err
	}

	if lang != "" {
		if err := writer.WriteField("language", string(lang)); err != nil {
			return "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return "", err
	}

	if err := writer.Close(); err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Content-Type", writer.FormDataContentType())
	headers.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := vendorerr.Do(ctx, http.DefaultClient, "POST", s.url, headers, body.Bytes(), "groq-stt", s.maxRetries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		respBody, _ := json.Marshal(errResp)
		return "", vendorerr.FromStatus("groq-stt", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Text, nil
}

func (s *GroqSTT) Name() string {
	return "groq-stt"
}
