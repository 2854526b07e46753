package relay

// BusEventType enumerates the session-bus event shapes from the external
// interfaces (spec §6). Wire encoding is the Connection Fabric's concern;
// this package only defines the Go-level shapes.
type BusEventType string

const (
	EventInterimTranscript BusEventType = "interim_transcript"
	EventInterimClear      BusEventType = "interim_clear"
	EventTranslation       BusEventType = "translation"
	EventParticipantJoined BusEventType = "participant_joined"
	EventParticipantLeft   BusEventType = "participant_left"
	EventMuteStatusChanged BusEventType = "mute_status_changed"
	EventCallEnded         BusEventType = "call_ended"
	EventIncomingCall      BusEventType = "incoming_call"
	EventContactRequest    BusEventType = "contact_request"
	EventUserStatusChanged BusEventType = "user_status_changed"
)

// BusEvent is the tagged union published to a session's bus topic. Exactly
// one of the payload fields is meaningful per Type; this mirrors the
// teacher's OrchestratorEvent{Type, Data} shape but with a typed payload
// per event kind instead of a bare interface{}, since the bus now carries
// many distinct shapes rather than one.
type BusEvent struct {
	Type      BusEventType
	SessionID string

	Interim     *InterimTranscriptPayload `json:"interim,omitempty"`
	Clear       *InterimClearPayload      `json:"clear,omitempty"`
	Translation *TranslationPayload       `json:"translation,omitempty"`
	Participant *ParticipantEventPayload  `json:"participant,omitempty"`
	Mute        *MuteStatusPayload        `json:"mute,omitempty"`
	CallEnded   *CallEndedPayload         `json:"call_ended,omitempty"`
	UserStatus  *UserStatusPayload        `json:"user_status,omitempty"`
}

type InterimTranscriptPayload struct {
	SpeakerID  string
	Text       string
	IsFinal    bool
	SourceLang Language
	Confidence float64
	TimestampMS int64
}

type InterimClearPayload struct {
	SpeakerID   string
	TimestampMS int64
}

// TranslationPayload is the fan-out event emitted once per target language
// by STP/BSW. AudioContent is nil when synthesis failed or was skipped;
// listeners fall back to the caption.
type TranslationPayload struct {
	SpeakerID    string
	RecipientIDs []string
	Transcript   string
	Translation  string
	AudioContent []byte
	SourceLang   Language
	TargetLang   Language
	IsFinal      bool
	IsStreaming  bool
	HasContext   bool
}

type ParticipantEventPayload struct {
	UserID string
}

type MuteStatusPayload struct {
	UserID string
	Muted  bool
}

// CallEndedReason names why a session ended.
type CallEndedReason string

const (
	CallEndedInsufficientParticipants CallEndedReason = "insufficient_participants"
	CallEndedExplicit                 CallEndedReason = "fabric_shutdown"
)

type CallEndedPayload struct {
	Reason CallEndedReason
}

type UserStatusPayload struct {
	UserID string
	Online bool
}
