package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus instrumentation for the vendor-call stages STP
// and BSW both route through: STT, translate, TTS, and the translate+
// synthesize fan-out as a whole. Sub-two-second end-to-end latency is the
// headline SLO, so it is the one ambient concern promoted to a
// first-class metric rather than left to log lines alone. A nil *Metrics
// is always safe to call into — every Observe/Count method takes a nil
// receiver — so callers that don't want Prometheus wiring (tests, a bare
// local run) just pass nil through. Buckets are seconds, not
// milliseconds, to read directly against that SLO.
type Metrics struct {
	STTDuration       *prometheus.HistogramVec
	TranslateDuration *prometheus.HistogramVec
	TTSDuration       *prometheus.HistogramVec
	EndToEndDuration  *prometheus.HistogramVec

	TranslationsTotal   *prometheus.CounterVec
	SynthCacheHitsTotal *prometheus.CounterVec
	DedupDroppedTotal   prometheus.Counter
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5}

// NewMetrics registers every collector against reg and returns the struct
// components reach into. Pass nil for the default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		STTDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "translation_relay_stt_duration_seconds",
				Help:    "Speech-to-text call duration, by path",
				Buckets: latencyBuckets,
			},
			[]string{"path"}, // streaming | batch
		),
		TranslateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "translation_relay_translate_duration_seconds",
				Help:    "Translation call duration, by target language",
				Buckets: latencyBuckets,
			},
			[]string{"target_lang"},
		),
		TTSDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "translation_relay_tts_duration_seconds",
				Help:    "Speech synthesis call duration, by target language",
				Buckets: latencyBuckets,
			},
			[]string{"target_lang"},
		),
		EndToEndDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "translation_relay_end_to_end_duration_seconds",
				Help:    "Translate-and-synthesize fan-out duration for a final transcript, by path",
				Buckets: latencyBuckets,
			},
			[]string{"path"},
		),
		TranslationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_relay_translations_total",
				Help: "Translations attempted, by target language and outcome",
			},
			[]string{"target_lang", "outcome"}, // ok | translate_error | synth_error
		),
		SynthCacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_relay_synth_cache_hits_total",
				Help: "Synthesis cache lookups, by hit or miss",
			},
			[]string{"result"}, // hit | miss
		),
		DedupDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "translation_relay_dedup_dropped_total",
				Help: "Messages dropped by the final-transcript deduplicator",
			},
		),
	}
}

// The Observe* methods take a nil receiver safely, so every call site in
// this package can hold a *Metrics that is nil in tests (no Prometheus
// registry involved) without an "if metrics != nil" guard at every call.

func (m *Metrics) ObserveSTT(path string, d time.Duration) {
	if m == nil {
		return
	}
	m.STTDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) ObserveTranslate(targetLang Language, d time.Duration) {
	if m == nil {
		return
	}
	m.TranslateDuration.WithLabelValues(string(targetLang)).Observe(d.Seconds())
}

func (m *Metrics) ObserveTTS(targetLang Language, d time.Duration) {
	if m == nil {
		return
	}
	m.TTSDuration.WithLabelValues(string(targetLang)).Observe(d.Seconds())
}

func (m *Metrics) ObserveEndToEnd(path string, d time.Duration) {
	if m == nil {
		return
	}
	m.EndToEndDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) CountTranslation(targetLang Language, outcome string) {
	if m == nil {
		return
	}
	m.TranslationsTotal.WithLabelValues(string(targetLang), outcome).Inc()
}

func (m *Metrics) CountSynthCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SynthCacheHitsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) CountDedupDropped() {
	if m == nil {
		return
	}
	m.DedupDroppedTotal.Inc()
}
