package relay

import (
	"context"
	"sync"
	"time"
)

// speakerPipeline is one (session_id, speaker_id)'s audio processing: the
// batch path (VAD + Pause Chunker -> BSW) always runs, and the streaming
// path (Interim Session) runs alongside it whenever a StreamingSTTProvider
// is configured. Both paths funnel finals through the same Deduplicator,
// so a duplicate result from whichever path is slower is dropped (spec
// §4.2's dual-path note, scenario S4).
type speakerPipeline struct {
	chunker *PauseChunker
	interim *InterimSession // nil when running batch-only
}

// Orchestrator owns every active Session and the per-speaker pipelines
// feeding it, replacing the teacher's single-conversation orchestrator.go
// with a multi-session, multi-participant construction that wires the
// same building blocks (VAD, chunker, STP/BSW, bus) per speaker instead of
// per user.
type Orchestrator struct {
	cfg     Config
	repo    CallRepository
	bus     SessionBus
	logger  Logger
	metrics *Metrics

	vad          VADProvider
	streamingSTT StreamingSTTProvider // optional
	batchSTT     STTProvider
	stp          *StreamingTranslationProcessor
	bsw          *BatchSegmentWorker

	contexts *StreamContextStore

	mu               sync.Mutex
	sessions         map[string]*Session
	participants     map[string]map[string]*Participant // sessionID -> userID -> participant
	pipelines        map[StreamKey]*speakerPipeline
	disconnectTimers map[StreamKey]*time.Timer
}

// NewOrchestrator wires one TranslationProcessor, Deduplicator, and
// StreamContextStore shared by both STP and BSW, per spec §9's
// "extract a TranslationProcessor that both paths invoke" guidance.
func NewOrchestrator(cfg Config, repo CallRepository, bus SessionBus, vad VADProvider, streamingSTT StreamingSTTProvider, batchSTT STTProvider, translate TranslateProvider, tts TTSProvider, resolver *ContextResolver, logger Logger, metrics *Metrics) *Orchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	dedup := NewDeduplicator(cfg.MessageDedupTTL)
	contexts := NewStreamContextStore(cfg)
	synth := NewSynthCache(cfg.TTSCacheMaxSize)
	pool := NewVendorWorkerPool(cfg.VendorWorkerPoolSize)
	processor := NewTranslationProcessor(cfg, translate, tts, synth, resolver, pool, logger, metrics)

	return &Orchestrator{
		cfg:              cfg,
		repo:             repo,
		bus:              bus,
		logger:           logger,
		metrics:          metrics,
		vad:              vad,
		streamingSTT:     streamingSTT,
		batchSTT:         batchSTT,
		stp:              NewStreamingTranslationProcessor(repo, contexts, bus, dedup, processor, logger, metrics),
		bsw:              NewBatchSegmentWorker(cfg, batchSTT, processor, repo, contexts, bus, dedup, pool, logger, metrics),
		contexts:         contexts,
		sessions:         make(map[string]*Session),
		participants:     make(map[string]map[string]*Participant),
		pipelines:        make(map[StreamKey]*speakerPipeline),
		disconnectTimers: make(map[StreamKey]*time.Timer),
	}
}

// Join registers a participant's connection to a session, creating the
// Session row on first join. Returns the current participant count after
// joining.
func (o *Orchestrator) Join(ctx context.Context, sessionID, userID string, lang Language) (*Session, int, error) {
	o.mu.Lock()
	sess, ok := o.sessions[sessionID]
	if !ok {
		sess = &Session{SessionID: sessionID, CallLanguage: lang, Active: true}
		o.sessions[sessionID] = sess
	}
	if o.participants[sessionID] == nil {
		o.participants[sessionID] = make(map[string]*Participant)
	}

	if timer, pending := o.disconnectTimers[StreamKey{SessionID: sessionID, SpeakerID: userID}]; pending {
		timer.Stop()
		delete(o.disconnectTimers, StreamKey{SessionID: sessionID, SpeakerID: userID})
	}

	o.participants[sessionID][userID] = &Participant{
		SessionID: sessionID,
		UserID:    userID,
		Language:  lang,
		Connected: true,
	}
	count := o.connectedCountLocked(sessionID)
	o.mu.Unlock()

	o.startPipeline(ctx, StreamKey{SessionID: sessionID, SpeakerID: userID}, lang)

	if o.bus != nil {
		o.bus.Publish(sessionID, BusEvent{
			Type:      EventParticipantJoined,
			SessionID: sessionID,
			Participant: &ParticipantEventPayload{
				UserID: userID,
			},
		})
	}
	return sess, count, nil
}

// connectedCountLocked must be called with o.mu held.
func (o *Orchestrator) connectedCountLocked(sessionID string) int {
	count := 0
	for _, p := range o.participants[sessionID] {
		if p.Connected {
			count++
		}
	}
	return count
}

// startPipeline creates the batch chunker and, if configured, the
// streaming Interim Session for key, unless one is already running. A
// reconnect within the offline grace period finds the pipeline entry still
// present; since handleConnection's per-connection context was cancelled
// the moment the old connection dropped, the prior Interim Session's pump
// may already have exited even though finalizeDisconnect never ran, so the
// existing session is handed the fresh ctx and asked to restart (a no-op
// if its pump is still alive) rather than left to rot silently.
func (o *Orchestrator) startPipeline(ctx context.Context, key StreamKey, lang Language) {
	o.mu.Lock()
	if pl, exists := o.pipelines[key]; exists {
		o.mu.Unlock()
		o.resumeInterim(ctx, pl, key)
		return
	}
	pl := &speakerPipeline{}
	pl.chunker = NewPauseChunker(key, lang, o.cfg, o.vad, func(seg Segment) {
		o.bsw.ProcessSegment(ctx, seg)
	}, o.logger)
	o.pipelines[key] = pl
	o.mu.Unlock()

	if o.streamingSTT == nil {
		return
	}
	interim := NewInterimSession(key, lang, o.cfg, o.streamingSTT, o.bus, o.stp.OnFinalTranscript(ctx), o.logger)
	if err := interim.StartSession(ctx); err != nil {
		o.logger.Warn("failed to start streaming session, falling back to batch-only", "key", key.String(), "error", err)
		return
	}
	o.mu.Lock()
	if pl, ok := o.pipelines[key]; ok {
		pl.interim = interim
	}
	o.mu.Unlock()
}

// resumeInterim rebinds an already-running speaker's Interim Session to the
// reconnecting participant's fresh context and restarts it if its
// underlying task died while the pipeline stayed registered.
func (o *Orchestrator) resumeInterim(ctx context.Context, pl *speakerPipeline, key StreamKey) {
	if o.streamingSTT == nil || pl.interim == nil {
		return
	}
	pl.interim.RefreshCallback(o.stp.OnFinalTranscript(ctx))
	if err := pl.interim.StartSession(ctx); err != nil {
		o.logger.Warn("failed to resume streaming session on reconnect", "key", key.String(), "error", err)
	}
}

// FeedAudio pushes one PCM16 chunk into both the batch chunker and, if
// running, the streaming session for key.
func (o *Orchestrator) FeedAudio(key StreamKey, chunk []byte) {
	o.mu.Lock()
	pl, ok := o.pipelines[key]
	o.mu.Unlock()
	if !ok {
		return
	}
	pl.chunker.Feed(chunk)
	if pl.interim != nil {
		pl.interim.Feed(chunk)
	}
}

// SetParticipantLanguage updates a participant's language in place
// (decided Open Question: mid-call switches apply immediately; any
// Translation event already in flight keeps its original target_lang).
func (o *Orchestrator) SetParticipantLanguage(sessionID, userID string, lang Language) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.participants[sessionID][userID]; ok {
		p.Language = lang
	}
}

// Leave marks userID disconnected after OfflineGracePeriod (cancellable by
// a Join before the grace period elapses), ending the speaker's pipelines
// and auto-ending the session if fewer than MinParticipants remain
// connected.
func (o *Orchestrator) Leave(sessionID, userID string) {
	key := StreamKey{SessionID: sessionID, SpeakerID: userID}
	o.mu.Lock()
	if old, pending := o.disconnectTimers[key]; pending {
		old.Stop()
	}
	timer := time.AfterFunc(o.cfg.OfflineGracePeriod, func() { o.finalizeDisconnect(key) })
	o.disconnectTimers[key] = timer
	o.mu.Unlock()
}

func (o *Orchestrator) finalizeDisconnect(key StreamKey) {
	o.mu.Lock()
	delete(o.disconnectTimers, key)
	if p, ok := o.participants[key.SessionID][key.SpeakerID]; ok {
		p.Connected = false
	}
	if pl, ok := o.pipelines[key]; ok {
		pl.chunker.Flush()
		pl.chunker.Shutdown()
		if pl.interim != nil {
			pl.interim.Close()
		}
		delete(o.pipelines, key)
	}
	remaining := o.connectedCountLocked(key.SessionID)
	sess := o.sessions[key.SessionID]
	o.mu.Unlock()

	// StreamContext and SegmentBuffer share the stream's lifecycle; both
	// are torn down once the speaker's pipeline is gone for good.
	if o.contexts != nil {
		o.contexts.Delete(key)
	}
	o.bsw.evictBuffer(key)

	if o.bus != nil {
		o.bus.Publish(key.SessionID, BusEvent{
			Type:      EventParticipantLeft,
			SessionID: key.SessionID,
			Participant: &ParticipantEventPayload{
				UserID: key.SpeakerID,
			},
		})
	}

	if sess != nil && remaining < o.cfg.MinParticipants {
		o.endSession(key.SessionID, CallEndedInsufficientParticipants)
	}
}

// endSession marks a session inactive and broadcasts call_ended exactly
// once; a second call on an already-ended session is a no-op.
func (o *Orchestrator) endSession(sessionID string, reason CallEndedReason) {
	o.mu.Lock()
	sess, ok := o.sessions[sessionID]
	if !ok || !sess.Active {
		o.mu.Unlock()
		return
	}
	sess.Active = false
	o.mu.Unlock()

	if o.bus != nil {
		o.bus.Publish(sessionID, BusEvent{
			Type:      EventCallEnded,
			SessionID: sessionID,
			CallEnded: &CallEndedPayload{Reason: reason},
		})
	}
}

// ConnectedParticipants returns the user IDs currently connected to a
// session, for the Connection Fabric's recipient bookkeeping.
func (o *Orchestrator) ConnectedParticipants(sessionID string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for userID, p := range o.participants[sessionID] {
		if p.Connected {
			out = append(out, userID)
		}
	}
	return out
}
