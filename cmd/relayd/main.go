package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/translation-relay/pkg/fabric"
	llmProvider "github.com/lokutor-ai/translation-relay/pkg/providers/llm"
	sttProvider "github.com/lokutor-ai/translation-relay/pkg/providers/stt"
	translateProvider "github.com/lokutor-ai/translation-relay/pkg/providers/translate"
	ttsProvider "github.com/lokutor-ai/translation-relay/pkg/providers/tts"
	"github.com/lokutor-ai/translation-relay/pkg/relay"
	"github.com/lokutor-ai/translation-relay/pkg/repository"
	sqlrepo "github.com/lokutor-ai/translation-relay/pkg/repository/sql"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: no .env file found, using system environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(os.Getenv("LOG_LEVEL"))}))
	rlog := newSlogLogger(logger)

	cfg := applyConfigFile(relay.DefaultConfig())
	if os.Getenv("CONTEXT_RESOLUTION_ENABLED") == "true" {
		cfg.ContextResolutionEnabled = true
	}

	stt := buildSTTProvider()
	translate := buildTranslateProvider()
	tts := buildTTSProvider()

	var resolver *relay.ContextResolver
	if cfg.ContextResolutionEnabled {
		resolver = relay.NewContextResolver(cfg, buildLLMProvider(os.Getenv("LLM_PROVIDER")), rlog)
	}

	repo, registry := buildRepository(rlog)

	redisClient := buildRedisClient()
	bus := buildSessionBus(redisClient, rlog)
	ingestion := buildIngestionStream(redisClient)

	vad := relay.NewSpectralVAD(cfg)

	reg := prometheus.DefaultRegisterer
	metrics := relay.NewMetrics(reg)

	// Interim Session only runs when a streaming-capable vendor is
	// configured; unset STREAMING_STT_PROVIDER leaves it nil and every
	// speaker runs the batch-only pipeline (§4.2's dual-path note —
	// batch-only is a supported degraded mode, not an error).
	streamingSTT := buildStreamingSTTProvider()
	orch := relay.NewOrchestrator(cfg, repo, bus, vad, streamingSTT, stt, translate, tts, resolver, rlog, metrics)

	auth := buildAuthenticator()
	server := fabric.NewServer(cfg, orch, bus, repo, registry, ingestion, auth, rlog)
	server.RegisterGauges(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.ServeHTTP)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok: %d active sessions, %d connections\n", server.Manager().ActiveSessionCount(), server.Manager().TotalConnections())
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	httpServer := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		logger.Info("relayd listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDrainTimeout+2*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildSTTProvider selects the batch STT vendor by env var, following the
// teacher's fallthrough-to-groq selection pattern.
func buildSTTProvider() relay.STTProvider {
	switch os.Getenv("STT_PROVIDER") {
	case "openai":
		key := requireEnv("OPENAI_API_KEY", "openai STT")
		model := os.Getenv("OPENAI_STT_MODEL")
		if model == "" {
			model = "whisper-1"
		}
		return sttProvider.NewOpenAISTT(key, model)
	case "deepgram":
		return sttProvider.NewDeepgramSTT(requireEnv("DEEPGRAM_API_KEY", "deepgram STT"))
	case "assemblyai":
		return sttProvider.NewAssemblyAISTT(requireEnv("ASSEMBLYAI_API_KEY", "assemblyai STT"))
	case "groq":
		fallthrough
	default:
		model := os.Getenv("GROQ_STT_MODEL")
		if model == "" {
			model = "whisper-large-v3-turbo"
		}
		return sttProvider.NewGroqSTT(requireEnv("GROQ_API_KEY", "groq STT"), model)
	}
}

// buildStreamingSTTProvider selects a StreamingSTTProvider by
// STREAMING_STT_PROVIDER. Only Deepgram exposes a real-time websocket
// session today; an unset or unrecognized value returns nil rather than
// failing startup, since batch-only is a supported mode.
func buildStreamingSTTProvider() relay.StreamingSTTProvider {
	switch os.Getenv("STREAMING_STT_PROVIDER") {
	case "deepgram":
		return sttProvider.NewDeepgramSTT(requireEnv("DEEPGRAM_API_KEY", "deepgram streaming STT"))
	default:
		return nil
	}
}

// buildTranslateProvider selects between the dedicated GCP Translate
// vendor and routing translation through an LLMProvider, per
// TRANSLATE_PROVIDER.
func buildTranslateProvider() relay.TranslateProvider {
	switch os.Getenv("TRANSLATE_PROVIDER") {
	case "llm":
		return translateProvider.NewLLMTranslate(buildLLMProvider(os.Getenv("LLM_PROVIDER")))
	case "gcp":
		fallthrough
	default:
		return translateProvider.NewGCPTranslate(requireEnv("GCP_TRANSLATE_API_KEY", "gcp translate"))
	}
}

func buildLLMProvider(name string) relay.LLMProvider {
	switch name {
	case "openai":
		return llmProvider.NewOpenAILLM(requireEnv("OPENAI_API_KEY", "openai LLM"), "gpt-4o")
	case "anthropic":
		return llmProvider.NewAnthropicLLM(requireEnv("ANTHROPIC_API_KEY", "anthropic LLM"), "claude-3-5-sonnet-20241022")
	case "google":
		return llmProvider.NewGoogleLLM(requireEnv("GOOGLE_API_KEY", "google LLM"), "gemini-1.5-flash")
	case "groq":
		fallthrough
	default:
		return llmProvider.NewGroqLLM(requireEnv("GROQ_API_KEY", "groq LLM"), "llama-3.3-70b-versatile")
	}
}

func buildTTSProvider() relay.TTSProvider {
	return ttsProvider.NewLokutorTTS(requireEnv("LOKUTOR_API_KEY", "lokutor TTS"))
}

// buildRepository picks the pgx-backed CallRepository when DATABASE_URL is
// set, falling back to the in-memory one for local/dev runs. Only the
// in-memory repository also satisfies fabric.ParticipantRegistry — a
// production deployment populates call_participants through an
// out-of-scope session API, so registry is nil there (see DESIGN.md).
func buildRepository(logger relay.Logger) (relay.CallRepository, fabric.ParticipantRegistry) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		mem := repository.NewMemoryRepository()
		return mem, mem
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatalf("failed to connect to DATABASE_URL: %v", err)
	}
	logger.Info("using pgx call repository")
	return sqlrepo.New(pool), nil
}

// buildRedisClient returns nil when REDIS_ADDR is unset, signaling every
// caller to fall back to an in-memory, single-process transport.
func buildRedisClient() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
}

func buildSessionBus(client *redis.Client, logger relay.Logger) relay.SessionBus {
	if client == nil {
		return relay.NewMemoryBus()
	}
	return relay.NewRedisBus(client, logger)
}

func buildIngestionStream(client *redis.Client) relay.IngestionStream {
	if client == nil {
		return relay.NewMemoryIngestionStream(1024)
	}
	group := os.Getenv("INGESTION_CONSUMER_GROUP")
	if group == "" {
		group = "relayd"
	}
	name := os.Getenv("INGESTION_CONSUMER_NAME")
	if name == "" {
		host, _ := os.Hostname()
		name = "relayd-" + host
	}
	return relay.NewRedisIngestionStream(client, group, name)
}

// buildAuthenticator parses RELAY_STATIC_TOKENS="token:user_id,token2:user2"
// into a TokenMapAuthenticator. A real deployment swaps this for whatever
// issues and validates session tokens upstream (spec §4.7 step 1).
func buildAuthenticator() *fabric.TokenMapAuthenticator {
	tokens := make(map[string]string)
	raw := os.Getenv("RELAY_STATIC_TOKENS")
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		tokens[parts[0]] = parts[1]
	}
	if len(tokens) == 0 {
		log.Println("Note: RELAY_STATIC_TOKENS is empty; no connection will authenticate")
	}
	return fabric.NewTokenMapAuthenticator(tokens)
}

func requireEnv(key, usage string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("Error: %s must be set for %s", key, usage)
	}
	return v
}
