package fabric

import "github.com/lokutor-ai/translation-relay/pkg/relay"

// controlMessage is the shape of every inbound text frame (spec §6,
// "Connection control messages"). Only Type is required; the other fields
// are read per Type.
type controlMessage struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted"`
}

const (
	controlHeartbeat = "heartbeat"
	controlMute      = "mute"
	controlLeave     = "leave"
	controlPing      = "ping"
)

const (
	ackHeartbeat = "heartbeat_ack"
	ackMute      = "mute_ack"
	ackPong      = "pong"
)

type heartbeatAck struct {
	Type string `json:"type"`
}

type muteAck struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted"`
}

type pongAck struct {
	Type string `json:"type"`
}

// outboundEvent is the JSON wire shape for a relay.BusEvent delivered to a
// client: relay.BusEvent itself carries no json tags on its envelope
// fields since nothing inside pkg/relay serializes it directly, so the
// fabric defines the tagged wire shape at the boundary where it's
// actually needed. AudioContent travels as a separate binary frame
// immediately following this one, flagged by HasAudio, rather than
// base64-inflating the JSON payload.
type outboundEvent struct {
	Type      relay.BusEventType `json:"type"`
	SessionID string             `json:"session_id"`

	Interim     *relay.InterimTranscriptPayload `json:"interim,omitempty"`
	Clear       *relay.InterimClearPayload      `json:"clear,omitempty"`
	Translation *translationWire                `json:"translation,omitempty"`
	Participant *relay.ParticipantEventPayload   `json:"participant,omitempty"`
	Mute        *relay.MuteStatusPayload         `json:"mute,omitempty"`
	CallEnded   *relay.CallEndedPayload          `json:"call_ended,omitempty"`
	UserStatus  *relay.UserStatusPayload         `json:"user_status,omitempty"`
}

// translationWire mirrors relay.TranslationPayload minus AudioContent,
// plus HasAudio so the client knows whether a binary frame follows.
type translationWire struct {
	SpeakerID    string         `json:"speaker_id"`
	RecipientIDs []string       `json:"recipient_ids"`
	Transcript   string         `json:"transcript"`
	Translation  string         `json:"translation"`
	SourceLang   relay.Language `json:"source_lang"`
	TargetLang   relay.Language `json:"target_lang"`
	IsFinal      bool           `json:"is_final"`
	IsStreaming  bool           `json:"is_streaming"`
	HasContext   bool           `json:"has_context"`
	HasAudio     bool           `json:"has_audio"`
}

func toOutboundEvent(ev relay.BusEvent) outboundEvent {
	out := outboundEvent{
		Type:        ev.Type,
		SessionID:   ev.SessionID,
		Interim:     ev.Interim,
		Clear:       ev.Clear,
		Participant: ev.Participant,
		Mute:        ev.Mute,
		CallEnded:   ev.CallEnded,
		UserStatus:  ev.UserStatus,
	}
	if ev.Translation != nil {
		t := ev.Translation
		out.Translation = &translationWire{
			SpeakerID:    t.SpeakerID,
			RecipientIDs: t.RecipientIDs,
			Transcript:   t.Transcript,
			Translation:  t.Translation,
			SourceLang:   t.SourceLang,
			TargetLang:   t.TargetLang,
			IsFinal:      t.IsFinal,
			IsStreaming:  t.IsStreaming,
			HasContext:   t.HasContext,
			HasAudio:     len(t.AudioContent) > 0,
		}
	}
	return out
}
