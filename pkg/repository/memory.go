// Package repository implements relay.CallRepository: the read-through
// view over the persistent store spec §4.10/§6 describes. Grounded on
// original_source's services/core/repositories.py.
package repository

import (
	"context"
	"sync"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// MemoryRepository is an in-process CallRepository for tests and local
// development — everything in this relay's test suite runs against it
// rather than a live database.
type MemoryRepository struct {
	mu           sync.RWMutex
	calls        map[string]*relay.Call // by session_id
	participants map[string][]*relay.Participant
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		calls:        make(map[string]*relay.Call),
		participants: make(map[string][]*relay.Participant),
	}
}

// PutCall registers a call for a session (test/dev setup helper).
func (r *MemoryRepository) PutCall(call relay.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := call
	r.calls[call.SessionID] = &c
}

// PutParticipant registers or updates a participant (test/dev setup
// helper, also used by the Orchestrator to reflect connect/disconnect).
func (r *MemoryRepository) PutParticipant(p relay.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.participants[p.SessionID]
	for i, existing := range list {
		if existing.UserID == p.UserID {
			updated := p
			list[i] = &updated
			return
		}
	}
	updated := p
	r.participants[p.SessionID] = append(list, &updated)
}

func (r *MemoryRepository) GetCallBySessionID(ctx context.Context, sessionID string) (*relay.Call, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	call, ok := r.calls[sessionID]
	return call, ok, nil
}

func (r *MemoryRepository) GetParticipantLanguage(ctx context.Context, sessionID, userID string) (relay.Language, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.participants[sessionID] {
		if p.UserID == userID {
			return p.Language, true, nil
		}
	}
	return "", false, nil
}

func (r *MemoryRepository) GetConnectedParticipants(ctx context.Context, callID string, excludeUserID string) ([]relay.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []relay.Participant
	for sessionID, call := range r.calls {
		if call.CallID != callID {
			continue
		}
		for _, p := range r.participants[sessionID] {
			if !p.Connected {
				continue
			}
			if excludeUserID != "" && p.UserID == excludeUserID {
				continue
			}
			out = append(out, *p)
		}
	}
	return out, nil
}

// GetTargetLanguages groups the session's connected participants by
// language, excluding speakerID unless includeSpeaker is true. Mirrors
// original_source's get_target_languages: only a language with at least
// one connected, non-excluded participant appears in the result.
func (r *MemoryRepository) GetTargetLanguages(ctx context.Context, sessionID, speakerID string, includeSpeaker bool) (relay.TargetLanguageMap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(relay.TargetLanguageMap)
	for _, p := range r.participants[sessionID] {
		if !p.Connected {
			continue
		}
		if p.UserID == speakerID && !includeSpeaker {
			continue
		}
		lang := p.Language
		if lang == "" {
			lang = relay.NormalizeLanguage("en")
		}
		out[lang] = append(out[lang], p.UserID)
	}
	return out, nil
}
