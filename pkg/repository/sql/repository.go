// Package sql is the pgx-backed relay.CallRepository, the production
// read-through view over the persistent call/participant tables. Grounded
// on original_source's services/core/repositories.py: the same two
// queries (get_target_languages, get_connected_participants), translated
// to explicit SQL rather than an ORM, matching the direct-pgx style the
// wider example pack uses for Postgres access.
package sql

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// Repository implements relay.CallRepository against a Postgres schema of
// calls(id, session_id, call_language) and
// call_participants(call_id, user_id, language, muted, is_connected).
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetCallBySessionID(ctx context.Context, sessionID string) (*relay.Call, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, session_id, call_language FROM calls WHERE session_id = $1`,
		sessionID,
	)
	var call relay.Call
	var lang string
	if err := row.Scan(&call.CallID, &call.SessionID, &lang); err != nil {
		if err.Error() == "no rows in result set" {
			return nil, false, nil
		}
		return nil, false, err
	}
	call.CallLanguage = relay.Language(lang)
	return &call, true, nil
}

func (r *Repository) GetParticipantLanguage(ctx context.Context, sessionID, userID string) (relay.Language, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT cp.language FROM call_participants cp
		   JOIN calls c ON c.id = cp.call_id
		  WHERE c.session_id = $1 AND cp.user_id = $2`,
		sessionID, userID,
	)
	var lang string
	if err := row.Scan(&lang); err != nil {
		if err.Error() == "no rows in result set" {
			return "", false, nil
		}
		return "", false, err
	}
	return relay.Language(lang), true, nil
}

func (r *Repository) GetConnectedParticipants(ctx context.Context, callID string, excludeUserID string) ([]relay.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT cp.user_id, cp.language, cp.muted
		   FROM call_participants cp
		  WHERE cp.call_id = $1 AND cp.is_connected = true AND ($2 = '' OR cp.user_id != $2)`,
		callID, excludeUserID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []relay.Participant
	for rows.Next() {
		var p relay.Participant
		var lang string
		if err := rows.Scan(&p.UserID, &lang, &p.Muted); err != nil {
			return nil, err
		}
		p.Language = relay.Language(lang)
		p.Connected = true
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetTargetLanguages groups a session's connected participants (minus the
// speaker, unless includeSpeaker) by their declared language. One query
// joins calls -> call_participants the way
// original_source's _get_target_languages does via SQLAlchemy.
func (r *Repository) GetTargetLanguages(ctx context.Context, sessionID, speakerID string, includeSpeaker bool) (relay.TargetLanguageMap, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT cp.user_id, cp.language
		   FROM call_participants cp
		   JOIN calls c ON c.id = cp.call_id
		  WHERE c.session_id = $1
		    AND cp.is_connected = true
		    AND ($2 OR cp.user_id != $3)`,
		sessionID, includeSpeaker, speakerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(relay.TargetLanguageMap)
	for rows.Next() {
		var userID, lang string
		if err := rows.Scan(&userID, &lang); err != nil {
			return nil, err
		}
		if lang == "" {
			lang = "en-US"
		}
		key := relay.Language(lang)
		out[key] = append(out[key], userID)
	}
	return out, rows.Err()
}
