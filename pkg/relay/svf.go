package relay

import "context"

// STTProvider is the batch half of the Speech Vendor Facade: one blocking
// call, one transcript. Grounded on the teacher's STTProvider interface;
// the audio argument is always PCM16 mono 16kHz here, where the teacher's
// agent used 44.1kHz stereo.
type STTProvider interface {
	Transcribe(ctx context.Context, audioPCM []byte, lang Language) (string, error)
	Name() string
}

// StreamingSTTProvider is the streaming half: callers get a channel to
// push PCM16 chunks into and a callback invoked for every interim/final
// result. Kept identical in shape to the teacher's StreamingSTTProvider.
type StreamingSTTProvider interface {
	STTProvider
	StreamTranscribe(ctx context.Context, lang Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error)
}

// TranslateProvider performs text translation, optionally with a context
// prefix for coherence across consecutive utterances. Vendor-unsupported
// case (source == target) is the caller's responsibility to short-circuit
// (see TranslateShortCircuit) — providers are free to also handle it.
type TranslateProvider interface {
	Translate(ctx context.Context, text string, sourceLang, targetLang Language, context string) (string, error)
	Name() string
}

// TTSProvider synthesizes speech. Grounded on the teacher's TTSProvider;
// Abort() is deliberately not part of this interface — see DESIGN.md's
// note on the teacher's optional Abort() capability, which this relay has
// no use for (no user-facing barge-in on the listener side).
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error
	Name() string
}

// VADProvider classifies one audio chunk for one stream key as speech or
// not, holding its own per-key sliding history.
type VADProvider interface {
	IsSpeech(key StreamKey, chunk []byte) bool
	ClearHistory(key StreamKey)
	Name() string
}

// TranslateShortCircuit implements testable property 9 (round-trip
// identity): translating lang to the same lang is a no-op. Callers should
// check this before invoking a TranslateProvider.
func TranslateShortCircuit(sourceLang, targetLang Language) (bool, string) {
	return sourceLang.ShortCode() == targetLang.ShortCode(), ""
}
