package relay

import (
	"context"
	"testing"
	"time"
)

type stubBatchSTT struct {
	transcripts []string
	i           int
}

func (s *stubBatchSTT) Transcribe(ctx context.Context, audio []byte, lang Language) (string, error) {
	if s.i >= len(s.transcripts) {
		return "", nil
	}
	out := s.transcripts[s.i]
	s.i++
	return out, nil
}
func (s *stubBatchSTT) Name() string { return "stub-batch-stt" }

func TestShortMergeCandidate(t *testing.T) {
	if !shortMergeCandidate("hi there", sentenceEnders) {
		t.Fatal("expected a short, unterminated phrase to be a merge candidate")
	}
	if shortMergeCandidate("Hello there.", sentenceEnders) {
		t.Fatal("expected a terminated phrase not to be a merge candidate")
	}
	if shortMergeCandidate("one two three four five six seven", sentenceEnders) {
		t.Fatal("expected a long phrase not to be a merge candidate")
	}
	if !shortMergeCandidate("wait,", sentenceEnders+",") {
		t.Fatal("comma should count as a terminator only when included in terminators")
	}
	if shortMergeCandidate("wait,", sentenceEnders) {
		t.Fatal("comma should not count as a terminator for the first-pass terminators")
	}
}

func TestSegmentBufferPushEvicts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBufferSegments = 2
	buf := NewSegmentBuffer(cfg)
	buf.push(bufferedTuple{transcript: "a"})
	buf.push(bufferedTuple{transcript: "b"})
	buf.push(bufferedTuple{transcript: "c"})

	pair := buf.lastTwo()
	if len(pair) != 2 || pair[0].transcript != "b" || pair[1].transcript != "c" {
		t.Fatalf("expected oldest tuple to be evicted, got %+v", pair)
	}
}

func TestBatchSegmentWorkerMergesShortFragments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeWindow = time.Minute
	stt := &stubBatchSTT{transcripts: []string{"Hi there", "how are you"}}
	repo := &fakeRepository{targets: map[string]TargetLanguageMap{"s1": {"he-IL": {"b"}}}}
	translate := &stubTranslate{fn: func(text string, targetLang Language) (string, error) { return text, nil }}
	processor := NewTranslationProcessor(cfg, translate, &stubTTS{}, NewSynthCache(10), nil, NewVendorWorkerPool(2), nil, nil)
	bus := NewMemoryBus()
	dedup := NewDeduplicator(cfg.MessageDedupTTL)
	contexts := NewStreamContextStore(cfg)
	pool := NewVendorWorkerPool(2)

	w := NewBatchSegmentWorker(cfg, stt, processor, repo, contexts, bus, dedup, pool, nil, nil)

	events, unsub := bus.Subscribe("s1")
	defer unsub()

	w.ProcessSegment(context.Background(), Segment{SessionID: "s1", SpeakerID: "a", SourceLang: "en-US", TriggerReason: TriggerSilenceTimeout})
	w.ProcessSegment(context.Background(), Segment{SessionID: "s1", SpeakerID: "a", SourceLang: "en-US", TriggerReason: TriggerSilenceTimeout})

	var lastTranslation TranslationPayload
	deadline := time.After(time.Second)
	count := 0
	for count < 2 {
		select {
		case ev := <-events:
			if ev.Type == EventTranslation {
				lastTranslation = *ev.Translation
				count++
			}
		case <-deadline:
			t.Fatalf("timed out waiting for translation events, got %d", count)
		}
	}

	if lastTranslation.Transcript == "how are you" {
		t.Fatalf("expected the second short fragment to merge with the first, got standalone %q", lastTranslation.Transcript)
	}
}

// TestBatchSegmentWorkerSmartMergeDoesNotDuplicate guards against a
// regression where maybeMerge's buf.replaceLast and ProcessSegment's
// buf.push both ran on a merge, leaving a duplicate copy of the merged
// tuple that a third short fragment would then merge into a
// self-concatenated, corrupted transcript.
func TestBatchSegmentWorkerSmartMergeDoesNotDuplicate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeWindow = time.Minute
	stt := &stubBatchSTT{transcripts: []string{"Hi", "there", "friend"}}
	repo := &fakeRepository{targets: map[string]TargetLanguageMap{"s1": {"he-IL": {"b"}}}}
	translate := &stubTranslate{fn: func(text string, targetLang Language) (string, error) { return text, nil }}
	processor := NewTranslationProcessor(cfg, translate, &stubTTS{}, NewSynthCache(10), nil, NewVendorWorkerPool(2), nil, nil)
	bus := NewMemoryBus()
	dedup := NewDeduplicator(cfg.MessageDedupTTL)
	contexts := NewStreamContextStore(cfg)
	pool := NewVendorWorkerPool(2)

	w := NewBatchSegmentWorker(cfg, stt, processor, repo, contexts, bus, dedup, pool, nil, nil)

	events, unsub := bus.Subscribe("s1")
	defer unsub()

	w.ProcessSegment(context.Background(), Segment{SessionID: "s1", SpeakerID: "a", SourceLang: "en-US", TriggerReason: TriggerSilenceTimeout})
	w.ProcessSegment(context.Background(), Segment{SessionID: "s1", SpeakerID: "a", SourceLang: "en-US", TriggerReason: TriggerSilenceTimeout})
	w.ProcessSegment(context.Background(), Segment{SessionID: "s1", SpeakerID: "a", SourceLang: "en-US", TriggerReason: TriggerSilenceTimeout})

	var lastTranslation TranslationPayload
	deadline := time.After(time.Second)
	count := 0
	for count < 3 {
		select {
		case ev := <-events:
			if ev.Type == EventTranslation {
				lastTranslation = *ev.Translation
				count++
			}
		case <-deadline:
			t.Fatalf("timed out waiting for translation events, got %d", count)
		}
	}

	if lastTranslation.Transcript != "Hi there friend" {
		t.Fatalf("expected the three short fragments to merge into \"Hi there friend\" without duplication, got %q", lastTranslation.Transcript)
	}

	buf := w.bufferFor(StreamKey{SessionID: "s1", SpeakerID: "a"})
	if got, ok := buf.last(); !ok || got.transcript != "Hi there friend" {
		t.Fatalf("expected the buffer's last tuple to hold the merged text once, got %+v (ok=%v)", got, ok)
	}
}

func TestBatchSegmentWorkerDropsTooShortTranscript(t *testing.T) {
	cfg := DefaultConfig()
	stt := &stubBatchSTT{transcripts: []string{"a"}}
	repo := &fakeRepository{targets: map[string]TargetLanguageMap{"s1": {"he-IL": {"b"}}}}
	translate := &stubTranslate{fn: func(text string, targetLang Language) (string, error) { return text, nil }}
	processor := NewTranslationProcessor(cfg, translate, &stubTTS{}, NewSynthCache(10), nil, NewVendorWorkerPool(2), nil, nil)
	bus := NewMemoryBus()
	dedup := NewDeduplicator(cfg.MessageDedupTTL)
	contexts := NewStreamContextStore(cfg)
	pool := NewVendorWorkerPool(2)
	w := NewBatchSegmentWorker(cfg, stt, processor, repo, contexts, bus, dedup, pool, nil, nil)

	events, unsub := bus.Subscribe("s1")
	defer unsub()

	w.ProcessSegment(context.Background(), Segment{SessionID: "s1", SpeakerID: "a", SourceLang: "en-US"})

	select {
	case ev := <-events:
		t.Fatalf("expected a single-character transcript to be dropped, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
