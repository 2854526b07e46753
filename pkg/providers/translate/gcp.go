// Package translate implements the Speech Vendor Facade's TranslateProvider:
// a dedicated translation vendor (GCP-style) and an LLM-backed alternate
// path, grounded on original_source's services/gcp/translate.py.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// GCPTranslate calls the Google Cloud Translation v2 REST API directly
// (API-key auth) rather than pulling in the Cloud client library, which
// nothing else in the stack uses — see DESIGN.md.
type GCPTranslate struct {
	apiKey string
	url    string
}

func NewGCPTranslate(apiKey string) *GCPTranslate {
	return &GCPTranslate{
		apiKey: apiKey,
		url:    "https://translation.googleapis.com/language/translate/v2",
	}
}

func (g *GCPTranslate) Name() string {
	return "gcp-translate"
}

// Translate ignores the context prefix; GCP's v2 API has no notion of
// rolling conversational context, unlike the LLM-backed path below.
func (g *GCPTranslate) Translate(ctx context.Context, text string, sourceLang, targetLang relay.Language, context string) (string, error) {
	if ok, _ := relay.TranslateShortCircuit(sourceLang, targetLang); ok {
		return text, nil
	}

	form := url.Values{}
	form.Set("q", text)
	form.Set("source", sourceLang.ShortCode())
	form.Set("target", targetLang.ShortCode())
	form.Set("format", "text")
	form.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, "POST", g.url, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gcp translate error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data struct {
			Translations []struct {
				TranslatedText string `json:"translatedText"`
			} `json:"translations"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Data.Translations) == 0 {
		return "", fmt.Errorf("gcp translate returned no translations")
	}
	return result.Data.Translations[0].TranslatedText, nil
}
