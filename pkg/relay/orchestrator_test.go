package relay

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type allSpeechVAD struct{}

func (allSpeechVAD) IsSpeech(key StreamKey, chunk []byte) bool { return true }
func (allSpeechVAD) ClearHistory(key StreamKey)                {}
func (allSpeechVAD) Name() string                              { return "all-speech-vad" }

func testOrchestrator(cfg Config, repo CallRepository) *Orchestrator {
	translate := &stubTranslate{fn: func(text string, targetLang Language) (string, error) { return text, nil }}
	tts := &stubTTS{}
	bus := NewMemoryBus()
	stt := &stubBatchSTT{transcripts: []string{"Hello there"}}
	return NewOrchestrator(cfg, repo, bus, allSpeechVAD{}, nil, stt, translate, tts, nil, nil, nil)
}

func TestOrchestratorJoinTracksParticipants(t *testing.T) {
	cfg := DefaultConfig()
	repo := &fakeRepository{targets: map[string]TargetLanguageMap{}}
	o := testOrchestrator(cfg, repo)

	_, count, err := o.Join(context.Background(), "s1", "a", "en-US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 participant, got %d", count)
	}

	_, count, _ = o.Join(context.Background(), "s1", "b", "he-IL")
	if count != 2 {
		t.Fatalf("expected 2 participants, got %d", count)
	}

	if got := o.ConnectedParticipants("s1"); len(got) != 2 {
		t.Fatalf("expected 2 connected participants, got %v", got)
	}
}

func TestOrchestratorLeaveEndsSessionBelowMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OfflineGracePeriod = 10 * time.Millisecond
	repo := &fakeRepository{targets: map[string]TargetLanguageMap{}}
	o := testOrchestrator(cfg, repo)

	o.Join(context.Background(), "s1", "a", "en-US")
	o.Join(context.Background(), "s1", "b", "he-IL")

	events, unsub := o.bus.Subscribe("s1")
	defer unsub()

	o.Leave("s1", "b")

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventCallEnded {
				if ev.CallEnded.Reason != CallEndedInsufficientParticipants {
					t.Fatalf("expected insufficient_participants reason, got %s", ev.CallEnded.Reason)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for call_ended event")
		}
	}
}

func TestOrchestratorRejoinCancelsDisconnectGrace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OfflineGracePeriod = 200 * time.Millisecond
	repo := &fakeRepository{targets: map[string]TargetLanguageMap{}}
	o := testOrchestrator(cfg, repo)

	o.Join(context.Background(), "s1", "a", "en-US")
	o.Join(context.Background(), "s1", "b", "he-IL")

	o.Leave("s1", "b")
	o.Join(context.Background(), "s1", "b", "he-IL")

	time.Sleep(300 * time.Millisecond)

	if got := o.ConnectedParticipants("s1"); len(got) != 2 {
		t.Fatalf("expected rejoin to cancel the pending disconnect, got %d connected", len(got))
	}
}

func TestOrchestratorFeedAudioRoutesToBatchPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinAudioLength = 0
	cfg.MaxAccumulatedAudioTime = 30 * time.Millisecond
	repo := &fakeRepository{targets: map[string]TargetLanguageMap{"s1": {"he-IL": {"b"}}}}
	o := testOrchestrator(cfg, repo)

	o.Join(context.Background(), "s1", "a", "en-US")
	o.Join(context.Background(), "s1", "b", "he-IL")

	events, unsub := o.bus.Subscribe("s1")
	defer unsub()

	key := StreamKey{SessionID: "s1", SpeakerID: "a"}
	o.FeedAudio(key, make([]byte, 4000))
	time.Sleep(cfg.MaxAccumulatedAudioTime + 50*time.Millisecond)
	o.FeedAudio(key, make([]byte, 10))

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventTranslation {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for a translation event from the batch path")
		}
	}
}

// TestOrchestratorResumesInterimSessionOnReconnect guards startPipeline's
// reconnect path: a speaker's per-connection context is cancelled the
// instant its socket drops, which kills the Interim Session's pump well
// before the offline grace period runs finalizeDisconnect. A Join that
// arrives before the grace period elapses finds the pipeline entry still
// present and must resume the dead session with the fresh context rather
// than leaving it silent for the rest of the connection.
func TestOrchestratorResumesInterimSessionOnReconnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OfflineGracePeriod = time.Hour
	repo := &fakeRepository{targets: map[string]TargetLanguageMap{}}
	translate := &stubTranslate{fn: func(text string, targetLang Language) (string, error) { return text, nil }}
	tts := &stubTTS{}
	bus := NewMemoryBus()
	batchSTT := &stubBatchSTT{}
	streamingSTT := &stubStreamingSTT{}
	o := NewOrchestrator(cfg, repo, bus, allSpeechVAD{}, streamingSTT, batchSTT, translate, tts, nil, nil, nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	o.Join(firstCtx, "s1", "a", "en-US")

	if atomic.LoadInt32(&streamingSTT.starts) != 1 {
		t.Fatalf("expected 1 vendor dial on first join, got %d", streamingSTT.starts)
	}

	key := StreamKey{SessionID: "s1", SpeakerID: "a"}
	o.mu.Lock()
	pl := o.pipelines[key]
	o.mu.Unlock()
	interim := pl.interim
	if interim == nil {
		t.Fatal("expected the first join to start an interim session")
	}

	cancel()
	interim.mu.Lock()
	done := interim.done
	interim.mu.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the interim session's pump to exit")
	}

	o.Join(context.Background(), "s1", "a", "en-US")

	if atomic.LoadInt32(&streamingSTT.starts) != 2 {
		t.Fatalf("expected the reconnect to resume the dead interim session with a second vendor dial, got %d", streamingSTT.starts)
	}
}
