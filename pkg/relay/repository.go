package relay

import "context"

// Call is the persisted call record the Call Repository reads through to.
// Only the fields the core depends on are modeled here — everything else
// about calls/users/contacts lives in the out-of-scope persistent store.
type Call struct {
	CallID       string
	SessionID    string
	CallLanguage Language
}

// CallRepository is the read-through view over the persistent store (spec
// §4.10/§6): "target-language map for session S excluding speaker U" and
// "participant language for (S, U)". Grounded on original_source's
// core/repositories.py CallRepository. Two implementations live in
// pkg/repository: an in-memory one (tests, local dev) and a pgx-backed one.
type CallRepository interface {
	// GetTargetLanguages returns, for every distinct language among the
	// session's currently connected participants (excluding speakerID
	// unless includeSpeaker is true), the list of user IDs with that
	// language.
	GetTargetLanguages(ctx context.Context, sessionID, speakerID string, includeSpeaker bool) (TargetLanguageMap, error)

	GetParticipantLanguage(ctx context.Context, sessionID, userID string) (Language, bool, error)

	GetCallBySessionID(ctx context.Context, sessionID string) (*Call, bool, error)

	GetConnectedParticipants(ctx context.Context, callID string, excludeUserID string) ([]Participant, error)
}
