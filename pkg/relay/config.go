package relay

import "time"

// Config carries every tunable named in the external interfaces section.
// Mirrors the teacher's Config/DefaultConfig pattern: one flat struct,
// one constructor with sane defaults, callers override individual fields.
type Config struct {
	// Audio format. The fabric only accepts PCM16 mono at this rate.
	AudioSampleRate    int
	AudioBytesPerSamp  int

	// VAD (speech_detector.py).
	SpectralHistoryMaxBytes  int
	MinAnalysisBytes         int
	RMSSilenceThreshold      float64
	FFTSpeechFreqMin         float64
	FFTSpeechFreqMax         float64
	FFTNoiseFreqMin          float64
	SpeechNoiseRatioThresh   float64

	// Pause Chunker.
	SilenceThreshold        time.Duration
	MinAudioLength          time.Duration
	MaxAccumulatedAudioTime time.Duration

	// Interim Session.
	InterimPublishInterval  time.Duration
	InterimMinCharsToPublish int
	InterimMaxTextLength     int
	InterimDedupWindow       time.Duration

	// STP / BSW.
	TranslationContextMaxChars int
	ContextSnippetMaxChars     int
	MessageDedupTTL            time.Duration
	TTSCacheMaxSize            int
	StreamContextMemoryMaxSize int
	MergeWindow                time.Duration
	MaxBufferSegments          int

	// Context resolution (supplemented feature).
	ContextResolutionEnabled         bool
	ContextMinLengthForResolution    int
	ContextMinWordsForResolution     int
	ContextMaxOutputRatio            float64
	ContextResolutionTimeout         time.Duration

	// Vendor deadlines.
	STTTimeout       time.Duration
	TranslateTimeout time.Duration
	TTSTimeout       time.Duration

	// Worker pool (§5).
	VendorWorkerPoolSize int

	// Session / participant lifecycle.
	DefaultParticipantLanguage string
	OfflineGracePeriod         time.Duration
	MinParticipants            int
	MaxParticipants            int

	// Fabric shutdown.
	ShutdownDrainTimeout time.Duration
}

// DefaultConfig returns the defaults named throughout spec.md §4 and §6.
func DefaultConfig() Config {
	return Config{
		AudioSampleRate:   16000,
		AudioBytesPerSamp: 2,

		SpectralHistoryMaxBytes: 12800, // ~400ms at 16kHz/16-bit mono
		MinAnalysisBytes:        3200,  // ~100ms
		RMSSilenceThreshold:     0.02,
		FFTSpeechFreqMin:        80,
		FFTSpeechFreqMax:        4000,
		FFTNoiseFreqMin:         5000,
		SpeechNoiseRatioThresh:  2.0,

		SilenceThreshold:        700 * time.Millisecond,
		MinAudioLength:          500 * time.Millisecond,
		MaxAccumulatedAudioTime: 5 * time.Second,

		InterimPublishInterval:   200 * time.Millisecond,
		InterimMinCharsToPublish: 3,
		InterimMaxTextLength:     500,
		InterimDedupWindow:       2 * time.Second,

		TranslationContextMaxChars: 400,
		ContextSnippetMaxChars:     200,
		MessageDedupTTL:            30 * time.Second,
		TTSCacheMaxSize:            100,
		StreamContextMemoryMaxSize: 50,
		MergeWindow:                1 * time.Second,
		MaxBufferSegments:          20,

		ContextResolutionEnabled:      false,
		ContextMinLengthForResolution: 8,
		ContextMinWordsForResolution:  2,
		ContextMaxOutputRatio:         2.0,
		ContextResolutionTimeout:      3 * time.Second,

		STTTimeout:       20 * time.Second,
		TranslateTimeout: 5 * time.Second,
		TTSTimeout:       10 * time.Second,

		VendorWorkerPoolSize: 16,

		DefaultParticipantLanguage: "en",
		OfflineGracePeriod:         5 * time.Second,
		MinParticipants:            2,
		MaxParticipants:            4,

		ShutdownDrainTimeout: 1 * time.Second,
	}
}
