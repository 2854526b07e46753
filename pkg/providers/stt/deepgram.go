package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/translation-relay/pkg/providers/vendorerr"
	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// deepgramStreamURL is the real-time listen endpoint; deepgram.go's
// Transcribe uses the REST sibling at a plain https:// URL built from the
// same host.
const deepgramStreamURL = "wss://api.deepgram.com/v1/listen"

type DeepgramSTT struct {
	apiKey     string
	url        string
	maxRetries int
}

func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey:     apiKey,
		url:        "https://api.deepgram.com/v1/listen",
		maxRetries: defaultSTTMaxRetries,
	}
}

// SetMaxRetries overrides the default retry budget for transient failures
// on the batch Transcribe path; StreamTranscribe holds one long-lived
// connection instead and has no equivalent retry knob.
func (s *DeepgramSTT) SetMaxRetries(n int) {
	s.maxRetries = n
}

func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

func (s *DeepgramSTT) Transcribe(ctx context.Context, audioPCM []byte, lang relay.Language) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.apiKey)
	headers.Set("Content-Type", "audio/l16; rate=16000; channels=1")

	resp, err := vendorerr.Do(ctx, http.DefaultClient, "POST", u.String(), headers, audioPCM, "deepgram-stt", s.maxRetries)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", vendorerr.FromStatus("deepgram-stt", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

// deepgramStreamResult is one Results-type message from the streaming
// endpoint; non-Results message types (Metadata, SpeechStarted) are
// ignored by readLoop.
type deepgramStreamResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// StreamTranscribe opens a Deepgram real-time session and returns a channel
// the caller feeds raw PCM16 chunks into; a nil chunk is the
// end-of-utterance sentinel and is translated into Deepgram's Finalize
// control message rather than an invalid empty binary frame. onTranscript
// is invoked from the read goroutine for every Results message Deepgram
// sends, final or interim.
func (s *DeepgramSTT) StreamTranscribe(ctx context.Context, lang relay.Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error) {
	u, err := url.Parse(deepgramStreamURL)
	if err != nil {
		return nil, err
	}
	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	params.Set("interim_results", "true")
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.apiKey)

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram stream dial: %w", err)
	}

	audio := make(chan []byte, 64)
	go deepgramWriteLoop(ctx, conn, audio)
	go deepgramReadLoop(ctx, conn, onTranscript)

	return audio, nil
}

// deepgramWriteLoop forwards audio chunks as binary frames; a nil chunk
// (end-of-utterance) sends Deepgram's Finalize control message instead,
// flushing the in-progress utterance without closing the session.
func deepgramWriteLoop(ctx context.Context, conn *websocket.Conn, audio <-chan []byte) {
	for {
		select {
		case chunk, ok := <-audio:
			if !ok {
				conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if chunk == nil {
				if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Finalize"}`)); err != nil {
					return
				}
				continue
			}
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "context done")
			return
		}
	}
}

// deepgramReadLoop decodes Results messages until the connection closes
// (vendor-initiated close or ctx cancellation), invoking onTranscript for
// each one.
func deepgramReadLoop(ctx context.Context, conn *websocket.Conn, onTranscript func(transcript string, isFinal bool) error) {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var result deepgramStreamResult
		if err := json.Unmarshal(msg, &result); err != nil {
			continue
		}
		if result.Type != "Results" || len(result.Channel.Alternatives) == 0 {
			continue
		}

		transcript := result.Channel.Alternatives[0].Transcript
		if transcript == "" {
			continue
		}
		if err := onTranscript(transcript, result.IsFinal); err != nil {
			return
		}
	}
}
