package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// Authenticator validates the opaque token a connection presents and
// resolves it to a user ID (spec §4.7 step 1: "authenticate via opaque
// token supplied by the external auth adapter"). The adapter itself is
// out of scope; this is the seam it plugs into.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (userID string, ok bool)
}

// ParticipantRegistry is the optional write-side of a relay.CallRepository
// that the fabric uses to mirror join/leave into the persistent store for
// local/dev runs. Production deployments populate call_participants rows
// through an out-of-scope session API instead, so this is nil there — see
// DESIGN.md.
type ParticipantRegistry interface {
	PutCall(relay.Call)
	PutParticipant(relay.Participant)
}

// Server is the Connection Fabric's HTTP entry point: one instance serves
// every session, accepting a WebSocket per participant and wiring it to
// the shared relay.Orchestrator and relay.SessionBus.
type Server struct {
	cfg          relay.Config
	orchestrator *relay.Orchestrator
	bus          relay.SessionBus
	repo         relay.CallRepository
	registry     ParticipantRegistry   // optional
	ingestion    relay.IngestionStream // optional
	auth         Authenticator
	manager      *ConnectionManager
	logger       relay.Logger
}

// NewServer wires the Connection Fabric's HTTP entry point. ingestion is
// optional (spec §4.6 durable transport for inbound audio); a nil value
// skips the ingestion-stream append in routeAudio and only feeds the
// Orchestrator's in-process pipelines, which is enough for a local/dev run
// with no durable replay requirement.
func NewServer(cfg relay.Config, orchestrator *relay.Orchestrator, bus relay.SessionBus, repo relay.CallRepository, registry ParticipantRegistry, ingestion relay.IngestionStream, auth Authenticator, logger relay.Logger) *Server {
	if logger == nil {
		logger = &relay.NoOpLogger{}
	}
	return &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		bus:          bus,
		repo:         repo,
		registry:     registry,
		ingestion:    ingestion,
		auth:         auth,
		manager:      NewConnectionManager(),
		logger:       logger,
	}
}

// Manager exposes the live connection registry, read by the metrics
// package and by cmd/relayd's health endpoint.
func (s *Server) Manager() *ConnectionManager {
	return s.manager
}

// ServeHTTP accepts one WebSocket connection and runs it to completion. It
// does not return until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	token := q.Get("token")

	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	userID, ok := s.auth.Authenticate(r.Context(), token)
	if !ok {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	lang := relay.NormalizeLanguage(q.Get("language"))
	if sessionID != relay.LobbySessionID {
		if existing, found, err := s.repo.GetParticipantLanguage(r.Context(), sessionID, userID); err == nil && found {
			lang = existing
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	c := newConnection(sessionID, userID, lang, conn)
	s.handleConnection(r.Context(), c)
}

func (s *Server) handleConnection(ctx context.Context, c *Connection) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.manager.Connect(c)
	s.registerParticipant(ctx, c)

	events, unsubscribe := s.bus.Subscribe(c.SessionID)
	defer unsubscribe()

	done := make(chan struct{})
	go s.forwardBusEvents(ctx, c, events, done)

	s.dispatchInbound(ctx, c)

	cancel()
	<-done

	s.manager.Disconnect(c)
	s.orchestrator.Leave(c.SessionID, c.UserID)
	if s.registry != nil {
		s.registry.PutParticipant(relay.Participant{SessionID: c.SessionID, UserID: c.UserID, Language: c.Language(), Connected: false})
	}
	c.close("connection ended")
}

func (s *Server) registerParticipant(ctx context.Context, c *Connection) {
	if s.registry != nil {
		if _, found, err := s.repo.GetCallBySessionID(ctx, c.SessionID); err == nil && !found {
			s.registry.PutCall(relay.Call{CallID: uuid.NewString(), SessionID: c.SessionID, CallLanguage: c.Language()})
		}
		s.registry.PutParticipant(relay.Participant{SessionID: c.SessionID, UserID: c.UserID, Language: c.Language(), Connected: true})
	}
	s.orchestrator.Join(ctx, c.SessionID, c.UserID, c.Language())
}

// dispatchInbound is the per-connection read loop (spec §4.7 step 4): text
// control messages are acted on immediately, binary frames are routed as
// audio. Returns when the socket closes or errors.
func (s *Server) dispatchInbound(ctx context.Context, c *Connection) {
	for {
		msgType, payload, err := c.conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Debug("connection read ended", "session", c.SessionID, "user", c.UserID, "error", err)
			}
			return
		}

		switch msgType {
		case websocket.MessageBinary:
			s.routeAudio(ctx, c, payload)
		case websocket.MessageText:
			s.handleControl(ctx, c, payload)
		}
	}
}

// routeAudio feeds one inbound PCM16 frame into the Orchestrator's dual
// audio pipeline and, independently, passes it straight through to every
// other live participant who shares the speaker's language (the
// low-latency path audio_router.py takes for a same-language listener,
// who needs no STT/translate/TTS round trip). A single-participant
// session is self-test mode: the lone speaker hears their own audio
// looped back.
func (s *Server) routeAudio(ctx context.Context, c *Connection, pcm []byte) {
	key := relay.StreamKey{SessionID: c.SessionID, SpeakerID: c.UserID}
	sourceLang := c.Language()

	if s.ingestion != nil {
		if _, err := s.ingestion.Append(ctx, key, sourceLang, pcm); err != nil {
			s.logger.Warn("ingestion stream append failed", "session", c.SessionID, "user", c.UserID, "error", err)
		}
	}

	s.orchestrator.FeedAudio(key, pcm)

	peers := s.manager.SessionConnections(c.SessionID)
	selfTest := len(peers) == 1

	for _, peer := range peers {
		if peer.UserID == c.UserID {
			if selfTest {
				peer.writeAudio(ctx, pcm)
			}
			continue
		}
		if peer.Language().ShortCode() == sourceLang.ShortCode() {
			peer.writeAudio(ctx, pcm)
		}
	}
}

// SetParticipantLanguage changes a connected participant's language
// without a reconnect (spec.md §9's mid-call-switch Open Question,
// SPEC_FULL.md's "mid-call language switch" supplement). There is no
// wire-protocol control message for this — the original profile-update
// path that triggers it is out of scope here, same as ParticipantRegistry
// — so this is the in-process seam such a caller uses directly. Three
// places hold a copy of a participant's language and all three need to
// move together: the Orchestrator's bookkeeping, the live Connection's
// recipient-filtering language, and the Call Repository row STP/BSW
// actually read target languages from (see GetTargetLanguages) — missing
// the last one would leave fan-out still routing to the old language.
func (s *Server) SetParticipantLanguage(sessionID, userID string, lang relay.Language) {
	s.orchestrator.SetParticipantLanguage(sessionID, userID, lang)

	muted := false
	if c, ok := s.manager.Get(sessionID, userID); ok {
		c.setLanguage(lang)
		muted = c.Muted()
	}

	if s.registry != nil {
		s.registry.PutParticipant(relay.Participant{SessionID: sessionID, UserID: userID, Language: lang, Muted: muted, Connected: true})
	}
}

func (s *Server) handleControl(ctx context.Context, c *Connection, payload []byte) {
	var msg controlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("malformed control message", "session", c.SessionID, "user", c.UserID, "error", err)
		return
	}

	switch msg.Type {
	case controlHeartbeat:
		c.writeJSON(ctx, heartbeatAck{Type: ackHeartbeat})
	case controlPing:
		c.writeJSON(ctx, pongAck{Type: ackPong})
	case controlMute:
		c.setMuted(msg.Muted)
		if s.registry != nil {
			s.registry.PutParticipant(relay.Participant{SessionID: c.SessionID, UserID: c.UserID, Language: c.Language(), Muted: msg.Muted, Connected: true})
		}
		c.writeJSON(ctx, muteAck{Type: ackMute, Muted: msg.Muted})
		s.bus.Publish(c.SessionID, relay.BusEvent{
			Type:      relay.EventMuteStatusChanged,
			SessionID: c.SessionID,
			Mute:      &relay.MuteStatusPayload{UserID: c.UserID, Muted: msg.Muted},
		})
	case controlLeave:
		s.orchestrator.Leave(c.SessionID, c.UserID)
	default:
		s.logger.Debug("unknown control message type", "type", msg.Type)
	}
}

// forwardBusEvents delivers session-bus events to c until ctx is
// cancelled, applying the recipient filter from spec §4.7 step 5.
func (s *Server) forwardBusEvents(ctx context.Context, c *Connection, events <-chan relay.BusEvent, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.deliver(ctx, c, ev)
		}
	}
}

func (s *Server) deliver(ctx context.Context, c *Connection, ev relay.BusEvent) {
	selfTest := s.manager.SessionParticipantCount(c.SessionID) == 1

	switch ev.Type {
	case relay.EventInterimTranscript:
		if ev.Interim.SpeakerID == c.UserID && !selfTest {
			return
		}
		s.send(ctx, c, ev, nil)
	case relay.EventInterimClear:
		if ev.Clear.SpeakerID == c.UserID && !selfTest {
			return
		}
		s.send(ctx, c, ev, nil)
	case relay.EventTranslation:
		t := ev.Translation
		deliverable := selfTest || (contains(t.RecipientIDs, c.UserID) && c.Language() == t.TargetLang)
		if !deliverable {
			return
		}
		s.send(ctx, c, ev, t.AudioContent)
	default:
		s.send(ctx, c, ev, nil)
	}
}

func (s *Server) send(ctx context.Context, c *Connection, ev relay.BusEvent, audio []byte) {
	if err := c.writeJSON(ctx, toOutboundEvent(ev)); err != nil {
		return
	}
	if len(audio) > 0 {
		c.writeAudio(ctx, audio)
	}
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
