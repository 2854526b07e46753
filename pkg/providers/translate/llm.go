package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// LLMTranslate implements TranslateProvider as a single-turn prompt over an
// LLMProvider, an alternate vendor to the dedicated translate APIs. Unlike
// GCPTranslate it can fold in rolling speaker context for coherence across
// consecutive utterances.
type LLMTranslate struct {
	llm relay.LLMProvider
}

func NewLLMTranslate(llm relay.LLMProvider) *LLMTranslate {
	return &LLMTranslate{llm: llm}
}

func (t *LLMTranslate) Name() string {
	return "llm-translate:" + t.llm.Name()
}

func (t *LLMTranslate) Translate(ctx context.Context, text string, sourceLang, targetLang relay.Language, context string) (string, error) {
	if ok, _ := relay.TranslateShortCircuit(sourceLang, targetLang); ok {
		return text, nil
	}

	system := fmt.Sprintf(
		"You are a real-time interpreter translating from %s to %s. "+
			"Reply with ONLY the translation, no explanation, no quotes.",
		sourceLang, targetLang,
	)
	var user strings.Builder
	if context != "" {
		user.WriteString("Conversation so far:\n")
		user.WriteString(context)
		user.WriteString("\n\n")
	}
	user.WriteString("Translate: ")
	user.WriteString(text)

	messages := []relay.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}

	out, err := t.llm.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
