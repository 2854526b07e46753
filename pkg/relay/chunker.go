package relay

import (
	"sync"
	"time"
)

// SegmentCallback receives a completed Segment. Must not block the caller
// longer than bounded — it is invoked while the chunker holds no lock, but
// a slow callback still delays the goroutine feeding frames into Feed.
type SegmentCallback func(Segment)

// PauseChunker accumulates one speaker's raw audio and emits a Segment on
// sustained silence, on a maximum-accumulation timeout, or on end-of-stream
// flush. One instance per (session_id, speaker_id). Grounded on
// original_source's chunker.py AudioChunker.
type PauseChunker struct {
	key        StreamKey
	sourceLang Language
	cfg        Config
	vad        VADProvider
	onSegment  SegmentCallback
	logger     Logger

	minBytes int

	mu             sync.Mutex
	buffer         []byte
	lastVoiceTime  time.Time
	lastProcessTime time.Time
	isShutdown     bool
}

func NewPauseChunker(key StreamKey, sourceLang Language, cfg Config, vad VADProvider, onSegment SegmentCallback, logger Logger) *PauseChunker {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	now := time.Now()
	minBytes := int(cfg.MinAudioLength.Seconds() * float64(cfg.AudioSampleRate) * float64(cfg.AudioBytesPerSamp))
	return &PauseChunker{
		key:             key,
		sourceLang:      sourceLang,
		cfg:             cfg,
		vad:             vad,
		onSegment:       onSegment,
		logger:          logger,
		minBytes:        minBytes,
		lastVoiceTime:   now,
		lastProcessTime: now,
	}
}

// Feed appends chunk to the buffer and applies the two emission triggers
// in priority order: time-based forcing first (so a very long continuous
// utterance is still segmented), then silence-based. Returns true if a
// segment was emitted.
func (c *PauseChunker) Feed(chunk []byte) bool {
	c.mu.Lock()
	if c.isShutdown {
		c.mu.Unlock()
		return false
	}

	c.buffer = append(c.buffer, chunk...)
	now := time.Now()

	accumulation := now.Sub(c.lastProcessTime)
	if accumulation >= c.cfg.MaxAccumulatedAudioTime {
		return c.processAndResetLocked(TriggerMaxAccumulation)
	}

	isVoice := c.vad.IsSpeech(c.key, chunk)
	if isVoice {
		c.lastVoiceTime = now
		c.mu.Unlock()
		return false
	}

	silenceDuration := now.Sub(c.lastVoiceTime)
	if len(c.buffer) >= c.minBytes && silenceDuration >= c.cfg.SilenceThreshold {
		return c.processAndResetLocked(TriggerPause)
	}
	c.mu.Unlock()
	return false
}

// CheckSilenceTimeout is called by the poll loop when no frame has arrived
// for the configured poll timeout; it may emit a segment with
// reason=silence even though no new audio triggered Feed.
func (c *PauseChunker) CheckSilenceTimeout() bool {
	c.mu.Lock()
	if c.isShutdown {
		c.mu.Unlock()
		return false
	}
	now := time.Now()
	silenceDuration := now.Sub(c.lastVoiceTime)
	if len(c.buffer) >= c.minBytes && silenceDuration >= c.cfg.SilenceThreshold {
		return c.processAndResetLocked(TriggerSilenceTimeout)
	}
	c.mu.Unlock()
	return false
}

// Flush emits the remaining buffer on end-of-stream if it meets the
// minimum length; otherwise the remainder is dropped, per spec §4.2.
func (c *PauseChunker) Flush() bool {
	c.mu.Lock()
	if c.isShutdown {
		c.mu.Unlock()
		return false
	}
	return c.processAndResetLocked(TriggerEndStream)
}

// Shutdown makes every subsequent operation a no-op.
func (c *PauseChunker) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isShutdown = true
	c.buffer = nil
}

// processAndResetLocked must be called with c.mu held; it unlocks before
// returning in every path so the callback never runs under the lock.
func (c *PauseChunker) processAndResetLocked(reason TriggerReason) bool {
	if len(c.buffer) < c.minBytes {
		c.mu.Unlock()
		return false
	}

	audioData := c.buffer
	duration := time.Duration(float64(len(audioData))/float64(c.cfg.AudioBytesPerSamp)/float64(c.cfg.AudioSampleRate)*float64(time.Second))
	now := time.Now()
	c.buffer = nil
	c.lastVoiceTime = now
	c.lastProcessTime = now
	c.mu.Unlock()

	seg := Segment{
		SessionID:     c.key.SessionID,
		SpeakerID:     c.key.SpeakerID,
		SourceLang:    c.sourceLang,
		AudioBytes:    audioData,
		TriggerReason: reason,
		Duration:      duration,
	}
	c.logger.Debug("pause chunker emitted segment", "key", c.key.String(), "reason", reason, "duration", duration)
	c.onSegment(seg)
	return true
}
