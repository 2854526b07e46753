package relay

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// SpectralVAD classifies PCM16 chunks as speech or silence per stream key,
// combining a cheap RMS pre-check with an FFT-based speech/noise band
// ratio. Grounded on original_source's speech_detector.py: sliding history
// window, RMS short-circuit, then voice-band vs noise-band energy ratio.
type SpectralVAD struct {
	cfg Config

	mu      sync.Mutex
	history map[StreamKey][]byte
}

// NewSpectralVAD builds a VAD sharing one history map across all stream
// keys, matching speech_detector.py's single process-wide instance with
// per-key history rather than one VAD object per speaker.
func NewSpectralVAD(cfg Config) *SpectralVAD {
	return &SpectralVAD{
		cfg:     cfg,
		history: make(map[StreamKey][]byte),
	}
}

func (v *SpectralVAD) Name() string { return "spectral_vad" }

// ClearHistory drops the sliding window for a key; called when a stream
// ends so memory does not accumulate across the process lifetime.
func (v *SpectralVAD) ClearHistory(key StreamKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.history, key)
}

// IsSpeech appends chunk to the key's history, trims to the configured
// window, and returns whether the window looks like speech. Any numeric
// failure (e.g. a degenerate FFT input) is treated as speech, per the
// "assume speech on uncertainty" contract (spec §4.1, §7).
func (v *SpectralVAD) IsSpeech(key StreamKey, chunk []byte) bool {
	v.mu.Lock()
	buf := append(v.history[key], chunk...)
	if max := v.cfg.SpectralHistoryMaxBytes; max > 0 && len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	v.history[key] = buf
	window := make([]byte, len(buf))
	copy(window, buf)
	v.mu.Unlock()

	if len(window) < v.cfg.MinAnalysisBytes {
		return true
	}

	samples := pcm16ToFloat(window)
	rms := computeRMS(samples)
	if rms < v.cfg.RMSSilenceThreshold {
		return false
	}

	ratio, ok := speechNoiseRatio(samples, v.cfg.AudioSampleRate, v.cfg.FFTSpeechFreqMin, v.cfg.FFTSpeechFreqMax, v.cfg.FFTNoiseFreqMin)
	if !ok {
		return true
	}
	return ratio > v.cfg.SpeechNoiseRatioThresh
}

func pcm16ToFloat(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float64(sample) / 32768.0
	}
	return out
}

func computeRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// speechNoiseRatio computes sum(magnitude^2) in the voice band over
// sum(magnitude^2) in the noise band, using a real-valued FFT. Returns
// ok=false if the sample count is too small to run an FFT on.
func speechNoiseRatio(samples []float64, sampleRate int, speechMin, speechMax, noiseMin float64) (float64, bool) {
	n := len(samples)
	if n < 2 {
		return 0, false
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, samples)

	const epsilon = 1e-10
	var speechEnergy, noiseEnergy float64
	for i, c := range coeffs {
		freq := fft.Freq(i) * float64(sampleRate)
		mag2 := real(c)*real(c) + imag(c)*imag(c)
		switch {
		case freq >= speechMin && freq <= speechMax:
			speechEnergy += mag2
		case freq >= noiseMin:
			noiseEnergy += mag2
		}
	}
	return speechEnergy / (noiseEnergy + epsilon), true
}
