package relay

import (
	"context"
	"strings"
	"sync"
	"time"
)

// bufferedTuple is one (transcript, translation) pair BSW's smart-merge
// reasons about, timestamped for the merge-window check.
type bufferedTuple struct {
	transcript  string
	translation string
	at          time.Time
}

// sentenceEnders are the punctuation marks that end a clause for the
// smart-merge predicate; finalizeForPublish additionally treats a
// trailing comma as a terminator (spec §4.5's supplemented second pass).
const sentenceEnders = ".!?"

// SegmentBuffer holds one speaker's recent (transcript, translation,
// timestamp) tuples for BSW's smart-merge, bounded to MaxBufferSegments
// with oldest-first eviction. Grounded on spec §4.5 / §3's SegmentBuffer
// entity.
type SegmentBuffer struct {
	cfg Config

	mu     sync.Mutex
	tuples []bufferedTuple
}

func NewSegmentBuffer(cfg Config) *SegmentBuffer {
	return &SegmentBuffer{cfg: cfg}
}

// last returns the most recent tuple and whether one exists.
func (b *SegmentBuffer) last() (bufferedTuple, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.tuples) == 0 {
		return bufferedTuple{}, false
	}
	return b.tuples[len(b.tuples)-1], true
}

// replaceLast swaps the most recent tuple for merged, used after a merge.
func (b *SegmentBuffer) replaceLast(merged bufferedTuple) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.tuples) == 0 {
		b.tuples = append(b.tuples, merged)
		return
	}
	b.tuples[len(b.tuples)-1] = merged
}

// push appends a new tuple, evicting the oldest on overflow.
func (b *SegmentBuffer) push(t bufferedTuple) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tuples = append(b.tuples, t)
	if len(b.tuples) > b.cfg.MaxBufferSegments {
		b.tuples = b.tuples[len(b.tuples)-b.cfg.MaxBufferSegments:]
	}
}

// lastTwo returns up to the two most recent tuples, oldest first.
func (b *SegmentBuffer) lastTwo() []bufferedTuple {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.tuples) == 0 {
		return nil
	}
	if len(b.tuples) == 1 {
		return []bufferedTuple{b.tuples[0]}
	}
	return b.tuples[len(b.tuples)-2:]
}

func shortMergeCandidate(text string, terminators string) bool {
	words := strings.Fields(text)
	if len(words) > 5 {
		return false
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	return !strings.ContainsAny(trimmed[len(trimmed)-1:], terminators)
}

// BatchSegmentWorker is the fallback pipeline consuming Pause Chunker
// segments: STT, optional smart-merge, then the shared TranslationProcessor
// fan-out. Grounded on spec §4.5 and original_source's audio-worker
// smart-merge description; shares SynthCache and the session bus with STP
// through the same TranslationProcessor instance.
type BatchSegmentWorker struct {
	cfg       Config
	stt       STTProvider
	processor *TranslationProcessor
	repo      CallRepository
	contexts  *StreamContextStore
	bus       SessionBus
	dedup     *Deduplicator
	pool      *VendorWorkerPool
	logger    Logger
	metrics   *Metrics

	buffersMu sync.Mutex
	buffers   map[StreamKey]*SegmentBuffer
}

func NewBatchSegmentWorker(cfg Config, stt STTProvider, processor *TranslationProcessor, repo CallRepository, contexts *StreamContextStore, bus SessionBus, dedup *Deduplicator, pool *VendorWorkerPool, logger Logger, metrics *Metrics) *BatchSegmentWorker {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &BatchSegmentWorker{
		cfg:       cfg,
		stt:       stt,
		processor: processor,
		repo:      repo,
		contexts:  contexts,
		bus:       bus,
		dedup:     dedup,
		pool:      pool,
		logger:    logger,
		metrics:   metrics,
		buffers:   make(map[StreamKey]*SegmentBuffer),
	}
}

func (w *BatchSegmentWorker) bufferFor(key StreamKey) *SegmentBuffer {
	w.buffersMu.Lock()
	defer w.buffersMu.Unlock()
	buf, ok := w.buffers[key]
	if !ok {
		buf = NewSegmentBuffer(w.cfg)
		w.buffers[key] = buf
	}
	return buf
}

// evictBuffer drops key's SegmentBuffer once its stream has ended; it
// shares SegmentBuffer's lifecycle with StreamContext.
func (w *BatchSegmentWorker) evictBuffer(key StreamKey) {
	w.buffersMu.Lock()
	defer w.buffersMu.Unlock()
	delete(w.buffers, key)
}

// ProcessSegment runs STT on seg, applies smart-merge against the
// speaker's buffer, and fans the result out exactly like STP from the
// "target language map" step onward.
func (w *BatchSegmentWorker) ProcessSegment(ctx context.Context, seg Segment) {
	key := StreamKey{SessionID: seg.SessionID, SpeakerID: seg.SpeakerID}

	var transcript string
	start := time.Now()
	err := w.pool.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, w.cfg.STTTimeout)
		defer cancel()
		var sttErr error
		transcript, sttErr = w.stt.Transcribe(callCtx, seg.AudioBytes, seg.SourceLang)
		return sttErr
	})
	w.metrics.ObserveSTT("batch", time.Since(start))
	if err != nil {
		w.logger.Warn("batch STT failed, dropping segment", "key", key.String(), "error", err)
		return
	}

	trimmed := strings.TrimSpace(transcript)
	if len(trimmed) < 2 {
		return
	}

	buf := w.bufferFor(key)
	merged, didMerge := w.maybeMerge(buf, trimmed, seg.TriggerReason)
	if !didMerge {
		buf.push(bufferedTuple{transcript: merged, at: time.Now()})
	}
	w.finalizeForPublish(buf)

	w.processFinal(ctx, FinalTranscript{
		SessionID:  seg.SessionID,
		SpeakerID:  seg.SpeakerID,
		SourceLang: seg.SourceLang,
		Text:       merged,
		Origin:     OriginBatch,
	})
}

// maybeMerge merges transcript with the previous tuple if both are short,
// the gap is within MergeWindow, and the previous does not already end a
// clause — spec §4.5's smart-merge predicate. The bool return reports
// whether it replaced buf's last tuple in place; the caller must not also
// push transcript as a new tuple when it did, or the buffer ends up with
// a duplicate of the just-merged text that corrupts the next round's
// merge decision.
func (w *BatchSegmentWorker) maybeMerge(buf *SegmentBuffer, transcript string, reason TriggerReason) (string, bool) {
	prev, ok := buf.last()
	if !ok {
		return transcript, false
	}
	if time.Since(prev.at) >= w.cfg.MergeWindow {
		return transcript, false
	}
	if !shortMergeCandidate(prev.transcript, sentenceEnders) || !shortMergeCandidate(transcript, sentenceEnders) {
		return transcript, false
	}
	merged := strings.TrimSpace(prev.transcript + " " + transcript)
	buf.replaceLast(bufferedTuple{transcript: merged, at: time.Now()})
	return merged, true
}

// finalizeForPublish is the supplemented second merge pass over the last
// two buffered tuples at publish time, additionally treating a trailing
// comma as a clause terminator.
func (w *BatchSegmentWorker) finalizeForPublish(buf *SegmentBuffer) {
	pair := buf.lastTwo()
	if len(pair) != 2 {
		return
	}
	terminators := sentenceEnders + ","
	if !shortMergeCandidate(pair[0].transcript, terminators) || !shortMergeCandidate(pair[1].transcript, terminators) {
		return
	}
	merged := strings.TrimSpace(pair[0].transcript + " " + pair[1].transcript)
	buf.replaceLast(bufferedTuple{transcript: merged, at: time.Now()})
}

// processFinal is identical to STP's pipeline from the dedup check
// onward — BSW never emits interims (spec §9 Open Question, decided in
// DESIGN.md), it only ever produces Translation events.
func (w *BatchSegmentWorker) processFinal(ctx context.Context, ft FinalTranscript) {
	processFinalTranscript(ctx, ft, w.repo, w.contexts, w.bus, w.dedup, w.processor, w.logger, w.metrics)
}
