package translate

import (
	"context"
	"testing"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

type stubLLMProvider struct {
	lastMessages []relay.ChatMessage
	response     string
}

func (s *stubLLMProvider) Complete(ctx context.Context, messages []relay.ChatMessage) (string, error) {
	s.lastMessages = messages
	return s.response, nil
}
func (s *stubLLMProvider) Name() string { return "stub-llm" }

func TestLLMTranslatePromptsWithContext(t *testing.T) {
	llm := &stubLLMProvider{response: "  Boker tov  "}
	tr := NewLLMTranslate(llm)

	out, err := tr.Translate(context.Background(), "Good morning", relay.Language("en-US"), relay.Language("he-IL"), "Speaker A: Hi\nSpeaker B: Hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Boker tov" {
		t.Errorf("expected trimmed translation, got %q", out)
	}
	if len(llm.lastMessages) != 2 {
		t.Fatalf("expected a system + user message, got %d", len(llm.lastMessages))
	}
	if llm.lastMessages[1].Content == "Translate: Good morning" {
		t.Errorf("expected the context to be folded into the user message, got %q", llm.lastMessages[1].Content)
	}
}

func TestLLMTranslateShortCircuitsSameLanguage(t *testing.T) {
	llm := &stubLLMProvider{response: "should not be used"}
	tr := NewLLMTranslate(llm)

	out, err := tr.Translate(context.Background(), "hello", relay.Language("en-US"), relay.Language("en-US"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected round-trip identity, got %q", out)
	}
	if llm.lastMessages != nil {
		t.Errorf("expected the LLM not to be called for a same-language target")
	}
}

func TestLLMTranslateName(t *testing.T) {
	tr := NewLLMTranslate(&stubLLMProvider{})
	if tr.Name() != "llm-translate:stub-llm" {
		t.Errorf("expected name to include the backing provider, got %s", tr.Name())
	}
}
