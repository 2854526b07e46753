package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
)

const (
	sampleRate = 16000
	channels   = 1
)

// relaycli is a developer loopback client for a running relayd: it opens
// the microphone and speakers through malgo, exactly as the teacher's
// cmd/agent did, but sends/receives audio over the Connection Fabric's
// WebSocket wire protocol instead of calling into an in-process
// ManagedStream. Useful for manually exercising a deployed relay end to
// end without a browser client.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: no .env file found, using system environment variables")
	}

	relayURL := os.Getenv("RELAY_URL")
	if relayURL == "" {
		relayURL = "ws://localhost:8080/ws"
	}
	sessionID := os.Getenv("RELAY_SESSION_ID")
	if sessionID == "" {
		sessionID = "demo"
	}
	token := os.Getenv("RELAY_TOKEN")
	language := os.Getenv("RELAY_LANGUAGE")
	if language == "" {
		language = "en-US"
	}

	dialURL, err := buildDialURL(relayURL, sessionID, token, language)
	if err != nil {
		log.Fatalf("invalid RELAY_URL: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", dialURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "client exiting")

	fmt.Printf("Connected to %s as session=%s language=%s\n", relayURL, sessionID, language)
	fmt.Println("Press Ctrl+C to exit")

	var playbackMu sync.Mutex
	var playbackBytes []byte
	var pendingAudio bool // last text event had has_audio=true; next binary frame is its payload

	go readLoop(ctx, conn, &playbackMu, &playbackBytes, &pendingAudio)
	go heartbeatLoop(ctx, conn)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	var rmsMu sync.Mutex
	lastRMS := 0.0

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			rms := computeRMS(pInput)
			rmsMu.Lock()
			lastRMS = rms
			rmsMu.Unlock()

			if err := conn.Write(ctx, websocket.MessageBinary, pInput); err != nil && ctx.Err() == nil {
				log.Printf("write audio frame: %v", err)
			}
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			if n < len(pOutput) {
				for i := n; i < len(pOutput); i++ {
					pOutput[i] = 0
				}
			}
			playbackMu.Unlock()
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	go func() {
		for {
			rmsMu.Lock()
			level := lastRMS
			rmsMu.Unlock()
			dots := int(level * 500)
			if dots > 40 {
				dots = 40
			}
			fmt.Printf("\r[MIC ENERGY: %-40s] RMS: %.5f", strings.Repeat("|", dots), level)
			time.Sleep(100 * time.Millisecond)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Printf("\nDisconnecting...\n")
	_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"leave"}`))
}

func buildDialURL(relayURL, sessionID, token, language string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("token", token)
	q.Set("language", language)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func computeRMS(pcm []byte) float64 {
	var sum float64
	n := 0
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | (int16(pcm[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// inboundEvent mirrors fabric's outboundEvent wire shape closely enough to
// print it; relaycli is an external client and cannot import fabric's
// unexported type, so it keeps its own copy of the fields it cares about.
type inboundEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Interim   *struct {
		SpeakerID  string `json:"speaker_id"`
		Transcript string `json:"transcript"`
	} `json:"interim,omitempty"`
	Translation *struct {
		SpeakerID   string `json:"speaker_id"`
		Transcript  string `json:"transcript"`
		Translation string `json:"translation"`
		TargetLang  string `json:"target_lang"`
		IsFinal     bool   `json:"is_final"`
		HasAudio    bool   `json:"has_audio"`
	} `json:"translation,omitempty"`
	CallEnded *struct {
		Reason string `json:"reason"`
	} `json:"call_ended,omitempty"`
}

func readLoop(ctx context.Context, conn *websocket.Conn, playbackMu *sync.Mutex, playbackBytes *[]byte, pendingAudio *bool) {
	for {
		msgType, payload, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("\nconnection closed: %v\n", err)
			}
			return
		}

		switch msgType {
		case websocket.MessageText:
			var ev inboundEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				continue
			}
			printEvent(ev)
			*pendingAudio = ev.Translation != nil && ev.Translation.HasAudio
		case websocket.MessageBinary:
			if *pendingAudio {
				playbackMu.Lock()
				*playbackBytes = append(*playbackBytes, payload...)
				playbackMu.Unlock()
				*pendingAudio = false
			}
		}
	}
}

func printEvent(ev inboundEvent) {
	switch {
	case ev.Interim != nil:
		fmt.Printf("\r\033[K[INTERIM %s] %s\n", ev.Interim.SpeakerID, ev.Interim.Transcript)
	case ev.Translation != nil:
		t := ev.Translation
		fmt.Printf("\r\033[K[%s -> %s] %s\n", t.SpeakerID, t.TargetLang, t.Translation)
	case ev.CallEnded != nil:
		fmt.Printf("\r\033[K[CALL ENDED] %s\n", ev.CallEnded.Reason)
	default:
		fmt.Printf("\r\033[K[EVENT] %s\n", ev.Type)
	}
}

func heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"heartbeat"}`))
		}
	}
}
