package relay

import (
	"fmt"
	"strings"
	"time"
)

// StreamKey identifies a single speaker's stream within a session. Used as
// a map key everywhere state is scoped per (session, speaker) instead of
// the string-concatenation ("session:speaker") the system this is
// grounded on relies on.
type StreamKey struct {
	SessionID string
	SpeakerID string
}

func (k StreamKey) String() string {
	return k.SessionID + ":" + k.SpeakerID
}

// Language is a BCP-47 tag, e.g. "en-US", "he-IL", "ru-RU". Short two-letter
// tags are accepted everywhere and normalized through shortLanguageTags
// before any vendor call.
type Language string

// Voice selects a synthesis voice; vendors that don't support voice
// selection ignore it.
type Voice string

const DefaultVoice Voice = ""

// shortLanguageTags maps common two-letter codes to a full BCP-47 tag.
// Grounded on original_source's audio_router.py LANGUAGE_CODE_MAP.
var shortLanguageTags = map[string]string{
	"he": "he-IL",
	"en": "en-US",
	"ru": "ru-RU",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
	"pt": "pt-PT",
	"ja": "ja-JP",
	"zh": "zh-CN",
	"ar": "ar-SA",
}

// NormalizeLanguage expands a short code to its full BCP-47 tag. A tag that
// already contains a region subtag is returned unchanged. Falls back to
// "<lang>-<LANG>" for unknown short codes, and to "en-US" for empty input —
// the same fallback original_source's normalize_language_code uses.
func NormalizeLanguage(lang string) Language {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return Language("en-US")
	}
	if strings.Contains(lang, "-") {
		return Language(lang)
	}
	lower := strings.ToLower(lang)
	if full, ok := shortLanguageTags[lower]; ok {
		return Language(full)
	}
	return Language(fmt.Sprintf("%s-%s", lower, strings.ToUpper(lower)))
}

// ShortCode returns the first two characters of the tag, used as the
// translation-memory partition key and for vendor APIs that want a bare
// ISO 639-1 code.
func (l Language) ShortCode() string {
	s := string(l)
	if len(s) < 2 {
		return s
	}
	return strings.ToLower(s[:2])
}

// Session is the call-level entity. Exclusively owned by the Orchestrator.
type Session struct {
	SessionID    string
	CallLanguage Language
	Active       bool
}

// IsLobby reports whether this is the reserved presence-only session.
func (s *Session) IsLobby() bool {
	return s.SessionID == LobbySessionID
}

// LobbySessionID is the reserved session for online-but-not-in-a-call
// participants; they receive presence/contact events, never audio.
const LobbySessionID = "lobby"

// Participant is one user's membership in a session.
type Participant struct {
	SessionID string
	UserID    string
	Language  Language
	Muted     bool
	Connected bool
}

// AudioFrame is one chunk of inbound PCM16 audio from a speaker. Not
// persisted — it only exists in flight from the Connection Fabric to the
// Pause Chunker and Interim Session.
type AudioFrame struct {
	SessionID  string
	SpeakerID  string
	SourceLang Language
	Bytes      []byte
	ArrivedAt  time.Time
}

func (f AudioFrame) Key() StreamKey {
	return StreamKey{SessionID: f.SessionID, SpeakerID: f.SpeakerID}
}

// TriggerReason names why the Pause Chunker emitted a Segment.
type TriggerReason string

const (
	TriggerPause           TriggerReason = "pause"
	TriggerMaxAccumulation TriggerReason = "max_accumulation"
	TriggerSilenceTimeout  TriggerReason = "silence"
	TriggerEndStream       TriggerReason = "end_stream"
)

// Segment is one emitted chunk of accumulated speaker audio, produced by
// the Pause Chunker and consumed by the Batch Segment Worker.
type Segment struct {
	SessionID     string
	SpeakerID     string
	SourceLang    Language
	AudioBytes    []byte
	TriggerReason TriggerReason
	Duration      time.Duration
}

// TranscriptOrigin distinguishes which pipeline produced a FinalTranscript.
type TranscriptOrigin string

const (
	OriginStreaming TranscriptOrigin = "streaming"
	OriginBatch     TranscriptOrigin = "batch"
)

// FinalTranscript is a committed transcription ready to fan into STP/BSW.
type FinalTranscript struct {
	SessionID  string
	SpeakerID  string
	SourceLang Language
	Text       string
	Origin     TranscriptOrigin
}

func (t FinalTranscript) Key() StreamKey {
	return StreamKey{SessionID: t.SessionID, SpeakerID: t.SpeakerID}
}

// TargetLanguageMap maps a listener language to the user IDs who should
// receive it, as resolved by the Call Repository for one speaker's
// utterance.
type TargetLanguageMap map[Language][]string

// NormalizeTranscript applies the canonical normalization used as the
// translation-memory and dedup key: trim, lower-case.
func NormalizeTranscript(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
