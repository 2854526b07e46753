package relay

import "context"

// StreamingTranslationProcessor is the callback target of Interim Session
// on final transcripts (spec §4.4). It owns nothing an Interim Session
// doesn't already hand it — the actual fan-out work is
// processFinalTranscript, shared with BatchSegmentWorker.
type StreamingTranslationProcessor struct {
	repo      CallRepository
	contexts  *StreamContextStore
	bus       SessionBus
	dedup     *Deduplicator
	processor *TranslationProcessor
	logger    Logger
	metrics   *Metrics
}

func NewStreamingTranslationProcessor(repo CallRepository, contexts *StreamContextStore, bus SessionBus, dedup *Deduplicator, processor *TranslationProcessor, logger Logger, metrics *Metrics) *StreamingTranslationProcessor {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &StreamingTranslationProcessor{
		repo:      repo,
		contexts:  contexts,
		bus:       bus,
		dedup:     dedup,
		processor: processor,
		logger:    logger,
		metrics:   metrics,
	}
}

// OnFinalTranscript is the function to register with every speaker's
// InterimSession.
func (p *StreamingTranslationProcessor) OnFinalTranscript(ctx context.Context) OnFinalTranscript {
	return func(ft FinalTranscript) error {
		processFinalTranscript(ctx, ft, p.repo, p.contexts, p.bus, p.dedup, p.processor, p.logger, p.metrics)
		return nil
	}
}
