package relay

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// TranslationResult is one target language's outcome from
// TranslationProcessor.ProcessForLanguages. AudioContent is nil when
// synthesis failed or was skipped — listeners fall back to the caption.
type TranslationResult struct {
	TargetLang   Language
	RecipientIDs []string
	Translation  string
	AudioContent []byte
}

// TranslationProcessor is the one fan-out primitive both STP and BSW call,
// extracted per spec §9's "duplicated worker responsibilities" strategy:
// one primitive, two callers, sharing SynthCache, the vendor worker pool,
// and (per-call) a StreamContext. Grounded on original_source's
// translation/processor.py TranslationProcessor + ContextResolver wiring
// lifted from streaming_translation_processor.py's process_language.
type TranslationProcessor struct {
	cfg        Config
	translate  TranslateProvider
	tts        TTSProvider
	synthCache *SynthCache
	resolver   *ContextResolver
	pool       *VendorWorkerPool
	logger     Logger
	metrics    *Metrics
}

func NewTranslationProcessor(cfg Config, translate TranslateProvider, tts TTSProvider, synthCache *SynthCache, resolver *ContextResolver, pool *VendorWorkerPool, logger Logger, metrics *Metrics) *TranslationProcessor {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &TranslationProcessor{
		cfg:        cfg,
		translate:  translate,
		tts:        tts,
		synthCache: synthCache,
		resolver:   resolver,
		pool:       pool,
		logger:     logger,
		metrics:    metrics,
	}
}

// ProcessForLanguages translates and synthesizes text for every target
// language in targets, in parallel, and returns one TranslationResult per
// language that succeeded at least at the translation step. A language
// whose translation fails is entirely absent from the result (spec §4.4:
// "the whole language is skipped"); a language whose synthesis fails is
// present with AudioContent == nil.
//
// Context resolution runs once, here, ahead of the per-language fan-out
// (SUPPLEMENTED FEATURES' context-resolution ordering) rather than inside
// each language's path: it rewrites ambiguous pronouns/demonstratives in
// the source sentence, which doesn't depend on the target language, so
// every language must translate the same resolved text and a translation-
// memory hit must not bypass it.
func (p *TranslationProcessor) ProcessForLanguages(ctx context.Context, text string, sourceLang Language, targets TargetLanguageMap, streamCtx *StreamContext) []TranslationResult {
	resolvedText := text
	if p.resolver != nil {
		resolvedText = p.resolver.Resolve(ctx, text, streamCtx.GetContext(), sourceLang)
	}

	var (
		mu      sync.Mutex
		results []TranslationResult
	)

	var g errgroup.Group
	for targetLang, recipients := range targets {
		targetLang, recipients := targetLang, recipients
		g.Go(func() error {
			result, ok := p.processOneLanguage(ctx, resolvedText, sourceLang, targetLang, recipients, streamCtx)
			if !ok {
				return nil
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	g.Wait() // per-language failures are isolated inside processOneLanguage; this never returns an error

	return results
}

// processOneLanguage runs the translation-memory lookup, translation,
// synthesis, and cache steps for one language against text, which has
// already been through context resolution. ok=false means translation
// failed and the language is skipped entirely.
func (p *TranslationProcessor) processOneLanguage(ctx context.Context, text string, sourceLang, targetLang Language, recipients []string, streamCtx *StreamContext) (TranslationResult, bool) {
	if same, _ := TranslateShortCircuit(sourceLang, targetLang); same {
		return p.synthesizeAndBuild(ctx, text, targetLang, recipients), true
	}

	normalized := NormalizeTranscript(text)

	if cached, hit := streamCtx.MemoryLookup(normalized, targetLang); hit {
		return p.synthesizeAndBuild(ctx, cached, targetLang, recipients), true
	}

	contextPrefix := streamCtx.GetContext()

	var translation string
	start := time.Now()
	err := p.pool.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.TranslateTimeout)
		defer cancel()
		var translateErr error
		translation, translateErr = p.translate.Translate(callCtx, text, sourceLang, targetLang, contextPrefix)
		return translateErr
	})
	p.metrics.ObserveTranslate(targetLang, time.Since(start))
	if err != nil {
		p.logger.Warn("translation failed, skipping language", "target_lang", targetLang, "error", err)
		p.metrics.CountTranslation(targetLang, "translate_error")
		return TranslationResult{}, false
	}

	streamCtx.MemoryStore(normalized, targetLang, translation)
	return p.synthesizeAndBuild(ctx, translation, targetLang, recipients), true
}

func (p *TranslationProcessor) synthesizeAndBuild(ctx context.Context, translation string, targetLang Language, recipients []string) TranslationResult {
	result := TranslationResult{
		TargetLang:   targetLang,
		RecipientIDs: recipients,
		Translation:  translation,
	}

	if p.tts == nil {
		p.metrics.CountTranslation(targetLang, "ok")
		return result
	}

	if audio, hit := p.synthCache.Get(translation, targetLang, DefaultVoice); hit {
		p.metrics.CountSynthCache(true)
		p.metrics.CountTranslation(targetLang, "ok")
		result.AudioContent = audio
		return result
	}
	p.metrics.CountSynthCache(false)

	var audio []byte
	start := time.Now()
	err := p.pool.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.TTSTimeout)
		defer cancel()
		var synthErr error
		audio, synthErr = p.tts.Synthesize(callCtx, translation, DefaultVoice, targetLang)
		return synthErr
	})
	p.metrics.ObserveTTS(targetLang, time.Since(start))
	if err != nil {
		p.logger.Warn("synthesis failed, publishing text-only event", "target_lang", targetLang, "error", err)
		p.metrics.CountTranslation(targetLang, "synth_error")
		return result
	}

	p.synthCache.Put(translation, targetLang, DefaultVoice, audio)
	result.AudioContent = audio
	p.metrics.CountTranslation(targetLang, "ok")
	return result
}
