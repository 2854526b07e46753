package relay

import (
	"context"
	"strings"
	"sync"
	"time"
)

// OnFinalTranscript is invoked exactly once per final result, with the
// exceptions isolated per spec §4.3 — a panic or error from the callback
// is logged and does not abort the session.
type OnFinalTranscript func(FinalTranscript) error

// audioChanBufferSize bounds the channel Interim Session reads from; the
// Connection Fabric's dispatch loop must not block longer than this
// buffer allows draining.
const audioChanBufferSize = 64

// endOfUtterance is the sentinel pushed onto the audio channel to signal
// the streaming STT driver should finalize.
var endOfUtterance = []byte(nil)

// InterimSession drives one speaker's streaming STT session: consumes
// audio, publishes interim captions and InterimClear markers to the
// session bus, and invokes onFinal exactly once per committed final.
// Grounded on the teacher's managed_stream.go: generation counter to
// detect stale callbacks from a superseded session, closeOnce for
// idempotent shutdown, non-blocking event emission.
type InterimSession struct {
	key        StreamKey
	sourceLang Language
	cfg        Config
	stt        StreamingSTTProvider
	bus        SessionBus
	logger     Logger

	mu              sync.Mutex
	generation      int
	running         bool
	done            chan struct{}
	audioChan       chan []byte
	lastPublished   string
	lastPublishTime time.Time
	onFinal         OnFinalTranscript

	closeOnce sync.Once
}

func NewInterimSession(key StreamKey, sourceLang Language, cfg Config, stt StreamingSTTProvider, bus SessionBus, onFinal OnFinalTranscript, logger Logger) *InterimSession {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &InterimSession{
		key:        key,
		sourceLang: sourceLang,
		cfg:        cfg,
		stt:        stt,
		bus:        bus,
		onFinal:    onFinal,
		logger:     logger,
	}
}

// StartSession begins driving the streaming STT vendor. If a previous
// session's task has completed (crash, vendor stream closed), its record
// is discarded and a new task is started; if the task is still alive,
// only the registered callback is refreshed (spec §4.3's restart rule).
func (s *InterimSession) StartSession(ctx context.Context) error {
	s.mu.Lock()
	if s.running && !s.isDeadLocked() {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	gen := s.generation
	s.running = true
	done := make(chan struct{})
	s.done = done
	audioChan := make(chan []byte, audioChanBufferSize)
	s.audioChan = audioChan
	s.mu.Unlock()

	sink, err := s.stt.StreamTranscribe(ctx, s.sourceLang, func(transcript string, isFinal bool) error {
		return s.handleTranscript(gen, transcript, isFinal)
	})
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
		return err
	}

	go s.pump(ctx, gen, audioChan, sink, done)
	return nil
}

// isDeadLocked reports whether the running task has already finished while
// the running flag was never cleared — must be called with s.mu held.
func (s *InterimSession) isDeadLocked() bool {
	if s.done == nil {
		return true
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *InterimSession) pump(ctx context.Context, gen int, audioChan <-chan []byte, sink chan<- []byte, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		if s.generation == gen {
			s.running = false
		}
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-audioChan:
			if !ok {
				return
			}
			select {
			case sink <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk == nil {
				// end-of-utterance sentinel forwarded; the vendor driver
				// finalizes and this pump's job for the utterance is done,
				// but the session stays open for the next utterance.
			}
		}
	}
}

// Feed pushes one audio chunk into the streaming STT driver. Non-blocking
// beyond the channel's buffer — a full channel means the vendor driver is
// falling behind, and Feed drops the chunk rather than blocking the
// Connection Fabric's dispatch loop.
func (s *InterimSession) Feed(chunk []byte) {
	s.mu.Lock()
	ch := s.audioChan
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- chunk:
	default:
		s.logger.Warn("interim session audio channel full, dropping chunk", "key", s.key.String())
	}
}

// EndUtterance signals the driver to finalize the current utterance
// without ending the session.
func (s *InterimSession) EndUtterance() {
	s.Feed(endOfUtterance)
}

// handleTranscript applies the publication rules (§4.3) and is the
// callback the streaming STT driver invokes for every interim/final. A
// stale generation (session was restarted) is dropped silently.
func (s *InterimSession) handleTranscript(gen int, transcript string, isFinal bool) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}

	trimmed := strings.TrimSpace(transcript)
	if len(trimmed) < s.cfg.InterimMinCharsToPublish {
		s.mu.Unlock()
		return nil
	}
	if len(trimmed) > s.cfg.InterimMaxTextLength {
		trimmed = trimmed[:s.cfg.InterimMaxTextLength]
	}

	if !isFinal {
		if trimmed == s.lastPublished {
			s.mu.Unlock()
			return nil
		}
		if time.Since(s.lastPublishTime) < s.cfg.InterimPublishInterval {
			s.mu.Unlock()
			return nil
		}
	}

	s.lastPublished = trimmed
	s.lastPublishTime = time.Now()
	onFinal := s.onFinal
	s.mu.Unlock()

	s.publishInterim(trimmed, isFinal)

	if !isFinal {
		return nil
	}

	s.publishClear()

	if onFinal == nil {
		return nil
	}
	if err := onFinal(FinalTranscript{
		SessionID:  s.key.SessionID,
		SpeakerID:  s.key.SpeakerID,
		SourceLang: s.sourceLang,
		Text:       trimmed,
		Origin:     OriginStreaming,
	}); err != nil {
		s.logger.Error("on_final_transcript callback failed", "key", s.key.String(), "error", err)
	}
	return nil
}

func (s *InterimSession) publishInterim(text string, isFinal bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(s.key.SessionID, BusEvent{
		Type:      EventInterimTranscript,
		SessionID: s.key.SessionID,
		Interim: &InterimTranscriptPayload{
			SpeakerID:   s.key.SpeakerID,
			Text:        text,
			IsFinal:     isFinal,
			SourceLang:  s.sourceLang,
			TimestampMS: time.Now().UnixMilli(),
		},
	})
}

func (s *InterimSession) publishClear() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(s.key.SessionID, BusEvent{
		Type:      EventInterimClear,
		SessionID: s.key.SessionID,
		Clear: &InterimClearPayload{
			SpeakerID:   s.key.SpeakerID,
			TimestampMS: time.Now().UnixMilli(),
		},
	})
}

// RefreshCallback updates onFinal without restarting the underlying
// streaming task, per the "task still alive" branch of the restart rule.
func (s *InterimSession) RefreshCallback(onFinal OnFinalTranscript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinal = onFinal
}

// Close ends the session and releases its channel. Idempotent.
func (s *InterimSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		ch := s.audioChan
		s.audioChan = nil
		s.mu.Unlock()
		if ch != nil {
			close(ch)
		}
	})
}
