package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

func TestGCPTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := struct {
			Data struct {
				Translations []struct {
					TranslatedText string `json:"translatedText"`
				} `json:"translations"`
			} `json:"data"`
		}{}
		resp.Data.Translations = []struct {
			TranslatedText string `json:"translatedText"`
		}{{TranslatedText: "Boker tov"}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	g := &GCPTranslate{apiKey: "test-key", url: server.URL}

	out, err := g.Translate(context.Background(), "Good morning", relay.Language("en-US"), relay.Language("he-IL"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Boker tov" {
		t.Errorf("expected 'Boker tov', got %q", out)
	}

	if g.Name() != "gcp-translate" {
		t.Errorf("expected gcp-translate, got %s", g.Name())
	}
}

func TestGCPTranslateShortCircuitsSameLanguage(t *testing.T) {
	g := NewGCPTranslate("unused")
	out, err := g.Translate(context.Background(), "hello", relay.Language("en-US"), relay.Language("en-US"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected round-trip identity, got %q", out)
	}
}
