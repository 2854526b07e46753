package relay

import (
	"context"
	"strings"
	"time"
)

// processFinalTranscript is the shared body of STP and BSW from "dedup
// check" through "publish + context append" (spec §4.4, onward from
// "target language map"). Extracted so both callers share one
// implementation rather than duplicating the fan-out orchestration, per
// spec §9's "duplicated worker responsibilities" strategy.
func processFinalTranscript(ctx context.Context, ft FinalTranscript, repo CallRepository, contexts *StreamContextStore, bus SessionBus, dedup *Deduplicator, processor *TranslationProcessor, logger Logger, metrics *Metrics) {
	trimmed := strings.TrimSpace(ft.Text)
	if len(trimmed) < 2 {
		return
	}

	key := ft.Key()
	streamCtx := contexts.GetOrCreate(key)

	normalized := NormalizeTranscript(trimmed)
	dedupID := key.String() + "|" + normalized
	if dedup.CheckAndMark(dedupID) {
		logger.Debug("dropping duplicate final transcript", "key", key.String())
		metrics.CountDedupDropped()
		return
	}

	targets, err := repo.GetTargetLanguages(ctx, ft.SessionID, ft.SpeakerID, false)
	if err != nil {
		logger.Warn("call repository lookup failed, dropping final", "key", key.String(), "error", err)
		return
	}
	if len(targets) == 0 {
		logger.Debug("no target languages for speaker, dropping final", "key", key.String())
		return
	}

	fanoutStart := time.Now()
	results := processor.ProcessForLanguages(ctx, trimmed, ft.SourceLang, targets, streamCtx)
	path := "batch"
	if ft.Origin == OriginStreaming {
		path = "streaming"
	}
	metrics.ObserveEndToEnd(path, time.Since(fanoutStart))

	var firstTranslation string
	for _, result := range results {
		if firstTranslation == "" {
			firstTranslation = result.Translation
		}
		if bus != nil {
			bus.Publish(ft.SessionID, BusEvent{
				Type:      EventTranslation,
				SessionID: ft.SessionID,
				Translation: &TranslationPayload{
					SpeakerID:    ft.SpeakerID,
					RecipientIDs: result.RecipientIDs,
					Transcript:   trimmed,
					Translation:  result.Translation,
					AudioContent: result.AudioContent,
					SourceLang:   ft.SourceLang,
					TargetLang:   result.TargetLang,
					IsFinal:      true,
					IsStreaming:  ft.Origin == OriginStreaming,
					HasContext:   streamCtx.GetContext() != "",
				},
			})
		}
	}

	if firstTranslation != "" {
		streamCtx.AddSegment(trimmed, firstTranslation)
	}
}
