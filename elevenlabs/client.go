// Package elevenlabs implements speech synthesis and transcription against
// the ElevenLabs REST API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/fwojciec/synapse"
	"github.com/rivo/uniseg"
)

const (
	defaultBaseURL      = "https://api.elevenlabs.io"
	defaultVoiceID      = "JBFqnCBsd6RMkjVDRZzb"
	defaultTTSModel     = "eleven_multilingual_v2"
	defaultOutputFormat = "mp3_44100_128"
	defaultSTTModel     = "scribe_v1"

	// MaxTextGraphemes bounds the text sent for synthesis.
	MaxTextGraphemes = 5000
	// MaxAudioBytes bounds the audio accepted for transcription.
	MaxAudioBytes = 10 << 20

	maxErrorBody = 512
)

// Interface compliance checks.
var (
	_ synapse.TextToSpeech = (*Client)(nil)
	_ synapse.SpeechToText = (*Client)(nil)
)

// Client talks to the ElevenLabs API.
type Client struct {
	apiKey       string
	baseURL      string
	voiceID      string
	ttsModel     string
	sttModel     string
	outputFormat string
	httpClient   *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL points the client at another endpoint, e.g. an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithVoice sets the synthesis voice id.
func WithVoice(id string) Option {
	return func(c *Client) { c.voiceID = id }
}

// WithModel sets the synthesis model id.
func WithModel(id string) Option {
	return func(c *Client) { c.ttsModel = id }
}

// WithSTTModel sets the transcription model id.
func WithSTTModel(id string) Option {
	return func(c *Client) { c.sttModel = id }
}

// WithOutputFormat sets the synthesized audio format.
func WithOutputFormat(f string) Option {
	return func(c *Client) { c.outputFormat = f }
}

// New returns a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		voiceID:      defaultVoiceID,
		ttsModel:     defaultTTSModel,
		sttModel:     defaultSTTModel,
		outputFormat: defaultOutputFormat,
		httpClient:   http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TextToSpeech synthesizes text and returns the encoded audio.
func (c *Client) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("elevenlabs: %w: text is empty", synapse.ErrValidation)
	}
	body, err := json.Marshal(struct {
		Text    string `json:"text"`
		ModelID string `json:"model_id"`
	}{truncateGraphemes(text, MaxTextGraphemes), c.ttsModel})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(c.voiceID) +
		"?" + url.Values{"output_format": {c.outputFormat}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	return audio, nil
}

// SpeechToText transcribes audio.
func (c *Client) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	switch {
	case len(audio) == 0:
		return "", fmt.Errorf("elevenlabs: %w: audio is empty", synapse.ErrAudioInvalid)
	case len(audio) > MaxAudioBytes:
		return "", fmt.Errorf("elevenlabs: %w: %d bytes exceeds %d", synapse.ErrAudioInvalid, len(audio), MaxAudioBytes)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model_id", c.sttModel); err != nil {
		return "", fmt.Errorf("elevenlabs: encode request: %w", err)
	}
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("elevenlabs: encode request: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("elevenlabs: encode request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech-to-text", &buf)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("elevenlabs: decode transcript: %w", err)
	}
	return out.Text, nil
}

// do sends req and turns non-2xx responses into errors.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("xi-api-key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("elevenlabs: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// truncateGraphemes keeps at most n user-perceived characters of s.
func truncateGraphemes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	g := uniseg.NewGraphemes(s)
	end, count := 0, 0
	for g.Next() {
		if count == n {
			return s[:end]
		}
		_, end = g.Positions()
		count++
	}
	return s
}
