// Package fabric is the Connection Fabric (spec §4.7): bidirectional
// per-participant connections over WebSocket, keyed by (session_id,
// user_id). It owns nothing about translation itself — it authenticates,
// registers participants with the relay.Orchestrator, and ferries audio
// frames and session-bus events across the wire. Grounded on
// original_source's services/connection/manager.go and audio_router.go.
package fabric

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// Connection wraps one accepted WebSocket for one (session_id, user_id).
// Writes are serialized through mu, mirroring the "at most one task writes
// to a connection's outbound transport" rule in the concurrency model.
type Connection struct {
	SessionID string
	UserID    string

	mu       sync.Mutex
	conn     *websocket.Conn
	language relay.Language
	muted    bool
}

func newConnection(sessionID, userID string, lang relay.Language, conn *websocket.Conn) *Connection {
	return &Connection{
		SessionID: sessionID,
		UserID:    userID,
		conn:      conn,
		language:  lang,
	}
}

func (c *Connection) Language() relay.Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

func (c *Connection) setLanguage(lang relay.Language) {
	c.mu.Lock()
	c.language = lang
	c.mu.Unlock()
}

func (c *Connection) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Connection) setMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

// writeJSON sends one text frame, serialized against concurrent writers.
func (c *Connection) writeJSON(ctx context.Context, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, body)
}

// writeAudio sends one binary frame (raw PCM16 or a synthesized clip).
func (c *Connection) writeAudio(ctx context.Context, pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageBinary, pcm)
}

func (c *Connection) close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.Close(websocket.StatusNormalClosure, reason)
}
