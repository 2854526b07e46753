package relay

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// synthKey is the composite key for a cached synthesis result.
type synthKey struct {
	Text  string
	Lang  Language
	Voice Voice
}

// SynthCache is a bounded LRU from (text, language, voice) to rendered
// audio bytes, process-wide and shared by STP and BSW. Backed by
// hashicorp/golang-lru rather than a hand-rolled map+list, per the
// evict-oldest-on-overflow bound spec §4.4/§8 require.
type SynthCache struct {
	cache *lru.Cache[synthKey, []byte]
}

func NewSynthCache(maxSize int) *SynthCache {
	c, err := lru.New[synthKey, []byte](maxSize)
	if err != nil {
		// Only returns an error for a non-positive size; fall back to a
		// single-entry cache rather than a nil cache that panics on use.
		c, _ = lru.New[synthKey, []byte](1)
	}
	return &SynthCache{cache: c}
}

func (s *SynthCache) Get(text string, lang Language, voice Voice) ([]byte, bool) {
	return s.cache.Get(synthKey{Text: text, Lang: lang, Voice: voice})
}

func (s *SynthCache) Put(text string, lang Language, voice Voice, audio []byte) {
	s.cache.Add(synthKey{Text: text, Lang: lang, Voice: voice}, audio)
}

func (s *SynthCache) Len() int {
	return s.cache.Len()
}
