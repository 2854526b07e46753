package fabric

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
	"github.com/lokutor-ai/translation-relay/pkg/repository"
)

type allSpeechVAD struct{}

func (allSpeechVAD) IsSpeech(key relay.StreamKey, chunk []byte) bool { return true }
func (allSpeechVAD) ClearHistory(key relay.StreamKey)                {}
func (allSpeechVAD) Name() string                                    { return "all-speech-vad" }

type stubBatchSTT struct{ transcript string }

func (s *stubBatchSTT) Transcribe(ctx context.Context, audio []byte, lang relay.Language) (string, error) {
	return s.transcript, nil
}
func (s *stubBatchSTT) Name() string { return "stub-stt" }

type stubTranslate struct{}

func (stubTranslate) Translate(ctx context.Context, text string, sourceLang, targetLang relay.Language, context string) (string, error) {
	return text + "[" + string(targetLang) + "]", nil
}
func (stubTranslate) Name() string { return "stub-translate" }

type stubTTS struct{}

func (stubTTS) Synthesize(ctx context.Context, text string, voice relay.Voice, lang relay.Language) ([]byte, error) {
	return []byte("audio:" + text), nil
}
func (stubTTS) StreamSynthesize(ctx context.Context, text string, voice relay.Voice, lang relay.Language, onChunk func([]byte) error) error {
	return onChunk([]byte("audio:" + text))
}
func (stubTTS) Name() string { return "stub-tts" }

func testServer(t *testing.T, transcript string) *Server {
	return testServerWithIngestion(t, transcript, nil)
}

// recordingIngestionStream records every Append call for assertions; Read
// and Ack are unused by routeAudio and left unimplemented for this test
// double.
type recordingIngestionStream struct {
	mu      sync.Mutex
	appends []recordedAppend
}

type recordedAppend struct {
	key        relay.StreamKey
	sourceLang relay.Language
	data       []byte
}

func (r *recordingIngestionStream) Append(ctx context.Context, key relay.StreamKey, sourceLang relay.Language, data []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appends = append(r.appends, recordedAppend{key: key, sourceLang: sourceLang, data: append([]byte(nil), data...)})
	return "", nil
}

func (r *recordingIngestionStream) Read(ctx context.Context, key relay.StreamKey) (relay.IngestionRecord, error) {
	return relay.IngestionRecord{}, context.Canceled
}

func (r *recordingIngestionStream) Ack(ctx context.Context, key relay.StreamKey, recordID string) error {
	return nil
}

func (r *recordingIngestionStream) snapshot() []recordedAppend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedAppend(nil), r.appends...)
}

func testServerWithIngestion(t *testing.T, transcript string, ingestion relay.IngestionStream) *Server {
	t.Helper()
	cfg := relay.DefaultConfig()
	cfg.MinAudioLength = 0
	cfg.MaxAccumulatedAudioTime = 30 * time.Millisecond

	repo := repository.NewMemoryRepository()
	bus := relay.NewMemoryBus()
	orch := relay.NewOrchestrator(cfg, repo, bus, allSpeechVAD{}, nil, &stubBatchSTT{transcript: transcript}, stubTranslate{}, stubTTS{}, nil, nil, nil)
	auth := NewTokenMapAuthenticator(map[string]string{"tok-a": "a", "tok-b": "b", "tok-c": "c"})
	return NewServer(cfg, orch, bus, repo, repo, ingestion, auth, nil)
}

func dial(t *testing.T, baseURL, sessionID, token, language string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "?session_id=" + sessionID + "&token=" + token + "&language=" + language
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestServeHTTPRejectsMissingSessionID(t *testing.T) {
	s := testServer(t, "hello")
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	resp, err := http.Get(httpServer.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestServeHTTPRejectsUnknownToken(t *testing.T) {
	s := testServer(t, "hello")
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	resp, err := http.Get(httpServer.URL + "?session_id=s1&token=nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestHeartbeatAndPingAcks(t *testing.T) {
	s := testServer(t, "hello")
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	conn := dial(t, httpServer.URL, "s1", "tok-a", "en-US")
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := context.Background()
	if err := wsjson.Write(ctx, conn, map[string]string{"type": "heartbeat"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var ack map[string]interface{}
	if err := wsjson.Read(ctx, conn, &ack); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if ack["type"] != "heartbeat_ack" {
		t.Fatalf("expected heartbeat_ack, got %v", ack)
	}

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := wsjson.Read(ctx, conn, &ack); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if ack["type"] != "pong" {
		t.Fatalf("expected pong, got %v", ack)
	}
}

func TestMuteBroadcastsToOtherParticipant(t *testing.T) {
	s := testServer(t, "hello")
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	a := dial(t, httpServer.URL, "s1", "tok-a", "en-US")
	defer a.Close(websocket.StatusNormalClosure, "")
	b := dial(t, httpServer.URL, "s1", "tok-b", "he-IL")
	defer b.Close(websocket.StatusNormalClosure, "")

	time.Sleep(50 * time.Millisecond) // let both joins register before muting

	ctx := context.Background()
	if err := wsjson.Write(ctx, a, map[string]interface{}{"type": "mute", "muted": true}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var ack map[string]interface{}
	if err := wsjson.Read(ctx, a, &ack); err != nil {
		t.Fatalf("ack read failed: %v", err)
	}
	if ack["type"] != "mute_ack" || ack["muted"] != true {
		t.Fatalf("expected mute_ack{muted:true}, got %v", ack)
	}

	readDeadline, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var event map[string]interface{}
	for {
		if err := wsjson.Read(readDeadline, b, &event); err != nil {
			t.Fatalf("expected mute_status_changed on b, got error: %v", err)
		}
		if event["type"] == "mute_status_changed" {
			break
		}
	}
	muteField, ok := event["mute"].(map[string]interface{})
	if !ok || muteField["user_id"] != "a" || muteField["muted"] != true {
		t.Fatalf("expected mute payload for user a, got %v", event)
	}
}

func TestSelfTestLoopbackEchoesAudio(t *testing.T) {
	s := testServer(t, "hello")
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	conn := dial(t, httpServer.URL, "s1", "tok-a", "en-US")
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := context.Background()
	frame := []byte{1, 2, 3, 4}
	if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readDeadline, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msgType, payload, err := conn.Read(readDeadline)
	if err != nil {
		t.Fatalf("expected the lone participant's audio to be echoed back, got error: %v", err)
	}
	if msgType != websocket.MessageBinary || string(payload) != string(frame) {
		t.Fatalf("expected self-test echo of %v, got type=%v payload=%v", frame, msgType, payload)
	}
}

func TestPassthroughToSameLanguagePeer(t *testing.T) {
	s := testServer(t, "hello")
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	a := dial(t, httpServer.URL, "s1", "tok-a", "en-US")
	defer a.Close(websocket.StatusNormalClosure, "")
	c := dial(t, httpServer.URL, "s1", "tok-c", "en-US")
	defer c.Close(websocket.StatusNormalClosure, "")

	time.Sleep(50 * time.Millisecond)

	ctx := context.Background()
	frame := []byte{9, 9, 9}
	if err := a.Write(ctx, websocket.MessageBinary, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readDeadline, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msgType, payload, err := c.Read(readDeadline)
	if err != nil {
		t.Fatalf("expected same-language passthrough on c, got error: %v", err)
	}
	if msgType != websocket.MessageBinary || string(payload) != string(frame) {
		t.Fatalf("expected passthrough of %v, got type=%v payload=%v", frame, msgType, payload)
	}
}

func TestTranslationDeliveredOnlyToMatchingLanguageRecipient(t *testing.T) {
	s := testServer(t, "hello there")
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	a := dial(t, httpServer.URL, "s1", "tok-a", "en-US")
	defer a.Close(websocket.StatusNormalClosure, "")
	b := dial(t, httpServer.URL, "s1", "tok-b", "he-IL")
	defer b.Close(websocket.StatusNormalClosure, "")

	time.Sleep(50 * time.Millisecond)

	ctx := context.Background()
	if err := a.Write(ctx, websocket.MessageBinary, make([]byte, 4000)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond) // past MaxAccumulatedAudioTime
	if err := a.Write(ctx, websocket.MessageBinary, make([]byte, 10)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readDeadline, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for {
		var event map[string]interface{}
		if err := wsjson.Read(readDeadline, b, &event); err != nil {
			t.Fatalf("expected a translation event on b, got error: %v", err)
		}
		if event["type"] != "translation" {
			continue
		}
		translation, ok := event["translation"].(map[string]interface{})
		if !ok {
			t.Fatalf("expected a translation payload, got %v", event)
		}
		if translation["target_lang"] != "he-IL" {
			t.Fatalf("expected target_lang he-IL, got %v", translation["target_lang"])
		}
		if translation["has_audio"] != true {
			t.Fatalf("expected has_audio true, got %v", translation["has_audio"])
		}
		_, _, err := b.Read(readDeadline)
		if err != nil {
			t.Fatalf("expected the synthesized audio frame to follow, got error: %v", err)
		}
		break
	}
}

func TestRouteAudioAppendsToIngestionStream(t *testing.T) {
	ingestion := &recordingIngestionStream{}
	s := testServerWithIngestion(t, "hello", ingestion)
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	conn := dial(t, httpServer.URL, "s1", "tok-a", "en-US")
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := context.Background()
	frame := []byte{5, 6, 7, 8}
	if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readDeadline, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, _, err := conn.Read(readDeadline); err != nil {
		t.Fatalf("expected the self-test echo before asserting the append, got error: %v", err)
	}

	appends := ingestion.snapshot()
	if len(appends) != 1 {
		t.Fatalf("expected exactly one ingestion append, got %d", len(appends))
	}
	got := appends[0]
	want := relay.StreamKey{SessionID: "s1", SpeakerID: "a"}
	if got.key != want {
		t.Fatalf("expected stream key %v, got %v", want, got.key)
	}
	if got.sourceLang != "en-US" {
		t.Fatalf("expected source_lang en-US, got %v", got.sourceLang)
	}
	if string(got.data) != string(frame) {
		t.Fatalf("expected appended data %v, got %v", frame, got.data)
	}
}

func TestSetParticipantLanguageRetargetsDelivery(t *testing.T) {
	s := testServer(t, "hello there")
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	a := dial(t, httpServer.URL, "s1", "tok-a", "en-US")
	defer a.Close(websocket.StatusNormalClosure, "")
	b := dial(t, httpServer.URL, "s1", "tok-b", "he-IL")
	defer b.Close(websocket.StatusNormalClosure, "")

	time.Sleep(50 * time.Millisecond)

	s.SetParticipantLanguage("s1", "b", "fr-FR")

	ctx := context.Background()
	if err := a.Write(ctx, websocket.MessageBinary, make([]byte, 4000)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if err := a.Write(ctx, websocket.MessageBinary, make([]byte, 10)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readDeadline, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for {
		var event map[string]interface{}
		if err := wsjson.Read(readDeadline, b, &event); err != nil {
			t.Fatalf("expected a translation event on b at its new language, got error: %v", err)
		}
		if event["type"] != "translation" {
			continue
		}
		translation, ok := event["translation"].(map[string]interface{})
		if !ok {
			t.Fatalf("expected a translation payload, got %v", event)
		}
		if translation["target_lang"] != "fr-FR" {
			t.Fatalf("expected target_lang fr-FR after the language switch, got %v", translation["target_lang"])
		}
		break
	}
}

func TestRouteAudioToleratesNilIngestionStream(t *testing.T) {
	s := testServerWithIngestion(t, "hello", nil)
	httpServer := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpServer.Close()

	conn := dial(t, httpServer.URL, "s1", "tok-a", "en-US")
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := context.Background()
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	readDeadline, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, _, err := conn.Read(readDeadline); err != nil {
		t.Fatalf("expected routeAudio to still work without an ingestion stream, got error: %v", err)
	}
}
