package relay

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryKey is the translation-memory key: normalized source text
// partitioned by the first two characters of the target language.
type memoryKey struct {
	NormalizedText string
	TargetLangPrefix string
}

// StreamContext holds the per-(session_id, speaker_id) mutable state STP
// and BSW share: a rolling transcript window for translation context, a
// bounded translation-memory cache, and a small recent-transcript dedup
// set. All reads and writes are guarded by the mutex stored in the context
// itself, per spec §5's "mutex is never held across I/O" rule — callers
// must copy what they need out and release before calling a vendor.
// Grounded on original_source's StreamContext dataclass and, for the
// bounded-append-with-truncation shape, the teacher's ConversationSession.
type StreamContext struct {
	cfg Config

	mu          sync.Mutex
	fullContext string
	memory      *lru.Cache[memoryKey, string]
	recentSeen  []string // bounded dedup set of normalized transcripts, oldest first
}

func NewStreamContext(cfg Config) *StreamContext {
	mem, err := lru.New[memoryKey, string](cfg.StreamContextMemoryMaxSize)
	if err != nil {
		mem, _ = lru.New[memoryKey, string](1)
	}
	return &StreamContext{
		cfg:    cfg,
		memory: mem,
	}
}

// IsDuplicate reports whether normalized was already recorded via
// AddSegment, without marking it — actual suppression of re-processing
// the same final is the Deduplicator's job (dedup window is time-based);
// this set exists only to avoid re-appending identical context lines, and
// is bounded to StreamContextMemoryMaxSize entries with oldest-first
// eviction, same as original_source's fixed 50-entry cap.
func (c *StreamContext) IsDuplicate(normalized string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.recentSeen {
		if s == normalized {
			return true
		}
	}
	return false
}

// AddSegment appends (transcript, translation) to the rolling context and
// records the normalized transcript in the recent-seen set, evicting the
// oldest entry if the set is full.
func (c *StreamContext) AddSegment(transcript, translation string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := transcript
	if translation != "" {
		line = transcript + " => " + translation
	}
	combined := c.fullContext
	if combined != "" {
		combined += " "
	}
	combined += line
	c.fullContext = CleanContext(combined, c.cfg.TranslationContextMaxChars*2)

	normalized := NormalizeTranscript(transcript)
	if len(c.recentSeen) >= c.cfg.StreamContextMemoryMaxSize {
		c.recentSeen = c.recentSeen[1:]
	}
	c.recentSeen = append(c.recentSeen, normalized)
}

// GetContext returns a copy of the rolling context, truncated to
// TranslationContextMaxChars for use as a translate-call prefix (the
// stored fullContext is kept at twice that bound per spec §3's invariant,
// GetContext applies the tighter "what we actually send" bound).
func (c *StreamContext) GetContext() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CleanContext(c.fullContext, c.cfg.TranslationContextMaxChars)
}

// MemoryLookup returns a previously stored translation for (text, target
// language), if any.
func (c *StreamContext) MemoryLookup(normalizedText string, targetLang Language) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory.Get(memoryKey{NormalizedText: normalizedText, TargetLangPrefix: targetLang.ShortCode()})
}

// MemoryStore records a translation result for future reuse.
func (c *StreamContext) MemoryStore(normalizedText string, targetLang Language, translation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory.Add(memoryKey{NormalizedText: normalizedText, TargetLangPrefix: targetLang.ShortCode()}, translation)
}

// CleanContext truncates s to at most maxChars, advancing past any leading
// partial word so the result never begins mid-word. Idempotent: calling it
// again on its own output is a no-op (spec §8 property 10).
func CleanContext(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	tail := s[len(s)-maxChars:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		// Only trim a leading partial word if the cut point itself split
		// a word (i.e. the character just before the cut was not a space).
		if len(s) > 0 && s[len(s)-maxChars-1] != ' ' {
			tail = tail[idx+1:]
		}
	}
	return strings.TrimSpace(tail)
}

// StreamContextStore lazily creates and retires StreamContexts, guarded by
// its own map-level mutex separate from any individual context's mutex —
// acquiring a context must not require holding the store lock during I/O.
type StreamContextStore struct {
	cfg Config

	mu       sync.Mutex
	contexts map[StreamKey]*StreamContext
}

func NewStreamContextStore(cfg Config) *StreamContextStore {
	return &StreamContextStore{
		cfg:      cfg,
		contexts: make(map[StreamKey]*StreamContext),
	}
}

// GetOrCreate returns the context for key, creating it on first use.
func (s *StreamContextStore) GetOrCreate(key StreamKey) *StreamContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.contexts[key]
	if !ok {
		ctx = NewStreamContext(s.cfg)
		s.contexts[key] = ctx
	}
	return ctx
}

// Delete destroys a context, e.g. when a stream ends.
func (s *StreamContextStore) Delete(key StreamKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, key)
}
