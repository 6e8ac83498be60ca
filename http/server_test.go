package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/agent"
	synhttp "github.com/fwojciec/synapse/http"
	"github.com/fwojciec/synapse/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoAgent appends the user text and an "echo: " reply to the session.
type echoAgent struct{}

func (echoAgent) Respond(_ context.Context, s *synapse.Session, text string, _ ...agent.RunOption) string {
	reply := "echo: " + text
	s.Append(
		synapse.NewUserMessage(text),
		synapse.AssistantMessage{Content: []synapse.ContentBlock{synapse.TextBlock{Text: reply}}, StopReason: synapse.StopEndTurn},
	)
	return reply
}

func newServer(t *testing.T, conv synapse.Convention, opts ...func(*synhttp.Config)) *httptest.Server {
	t.Helper()
	c := synhttp.Config{
		Agent:      echoAgent{},
		Tools:      []string{"price-forward", "check-limits"},
		Convention: conv,
	}
	for _, o := range opts {
		o(&c)
	}
	srv := httptest.NewServer(synhttp.NewServer(c).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func postAudio(t *testing.T, url string, audio []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "clip.wav")
	require.NoError(t, err)
	_, err = part.Write(audio)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func withTTS(audio []byte, err error) func(*synhttp.Config) {
	return func(c *synhttp.Config) {
		c.TTS = &mock.TextToSpeech{TextToSpeechFn: func(context.Context, string) ([]byte, error) {
			return audio, err
		}}
	}
}

func withSTT(text string, err error) func(*synhttp.Config) {
	return func(c *synhttp.Config) {
		c.STT = &mock.SpeechToText{SpeechToTextFn: func(_ context.Context, audio []byte) (string, error) {
			return text, err
		}}
	}
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	srv := newServer(t, synapse.ConventionNative)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, map[string]any{"status": "healthy"}, decode(t, resp))

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, "synapse", decode(t, resp)["service"])

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Chat(t *testing.T) {
	t.Parallel()

	t.Run("with speech", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, synapse.ConventionNative, withTTS([]byte("mp3"), nil))
		resp := postJSON(t, srv.URL+"/api/chat", `{"text":"price cable"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]any{
			"text":      "echo: price cable",
			"audio_url": "data:audio/mpeg;base64,bXAz",
		}, decode(t, resp))
	})

	t.Run("speech failure leaves audio empty", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, synapse.ConventionNative, withTTS(nil, errors.New("quota")))
		out := decode(t, postJSON(t, srv.URL+"/api/chat", `{"text":"hi"}`))
		assert.Equal(t, "echo: hi", out["text"])
		assert.Equal(t, "", out["audio_url"])
	})

	t.Run("bad requests", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, synapse.ConventionNative)
		tests := []struct {
			name string
			body string
			want string
		}{
			{"malformed", `{`, "invalid request body"},
			{"empty text", `{"text":"  "}`, "text is required"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				resp := postJSON(t, srv.URL+"/api/chat", tt.body)
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
				assert.Equal(t, map[string]any{"error": tt.want}, decode(t, resp))
			})
		}
	})
}

func TestServer_HistoryAndReset(t *testing.T) {
	t.Parallel()
	srv := newServer(t, synapse.ConventionMarker)
	decode(t, postJSON(t, srv.URL+"/api/chat", `{"text":"hello"}`))

	resp, err := http.Get(srv.URL + "/api/conversation-history")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "hello"},
		map[string]any{"role": "assistant", "content": "echo: hello"},
	}}, decode(t, resp))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/conversation-history", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/conversation-history")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"messages": []any{}}, decode(t, resp))
}

func TestServer_ResetKeepsOldTranscript(t *testing.T) {
	t.Parallel()
	s := synhttp.NewServer(synhttp.Config{Agent: echoAgent{}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	decode(t, postJSON(t, srv.URL+"/api/chat", `{"text":"one"}`))
	old := s.Session()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/conversation-history", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 2, old.Len())
	assert.NotEqual(t, old.ID, s.Session().ID)
	assert.Zero(t, s.Session().Len())
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	t.Run("with store", func(t *testing.T) {
		t.Parallel()
		store := &mock.TradeStore{TradesFn: func(context.Context) ([]synapse.Trade, error) {
			return []synapse.Trade{{TxID: "TXN-1"}, {TxID: "TXN-2"}}, nil
		}}
		srv := newServer(t, synapse.ConventionMarker, func(c *synhttp.Config) { c.Trades = store })
		decode(t, postJSON(t, srv.URL+"/api/chat", `{"text":"hi"}`))

		resp, err := http.Get(srv.URL + "/api/status")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"tools":      []any{"price-forward", "check-limits"},
			"convention": "marker",
			"turns":      float64(1),
			"trades":     float64(2),
			"stt":        false,
			"tts":        false,
		}, decode(t, resp))
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		store := &mock.TradeStore{TradesFn: func(context.Context) ([]synapse.Trade, error) {
			return nil, errors.New("database is locked")
		}}
		srv := newServer(t, synapse.ConventionNative, func(c *synhttp.Config) { c.Trades = store })
		resp, err := http.Get(srv.URL + "/api/status")
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, map[string]any{"error": "database is locked"}, decode(t, resp))
	})
}

func TestServer_Speech(t *testing.T) {
	t.Parallel()

	t.Run("speech to text", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, synapse.ConventionNative, withSTT("book it", nil))
		resp := postAudio(t, srv.URL+"/api/speech-to-text", []byte("RIFF"))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]any{"text": "book it"}, decode(t, resp))
	})

	t.Run("text to speech", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, synapse.ConventionNative, withTTS([]byte("mp3"), nil))
		resp := postJSON(t, srv.URL+"/api/text-to-speech", `{"text":"hi"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
		var body bytes.Buffer
		_, err := body.ReadFrom(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "mp3", body.String())
	})

	t.Run("audio chat", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, synapse.ConventionNative, withSTT("price cable", nil), withTTS([]byte("mp3"), nil))
		resp := postAudio(t, srv.URL+"/api/audio-chat", []byte("RIFF"))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]any{
			"transcript": "price cable",
			"text":       "echo: price cable",
			"audio_url":  "data:audio/mpeg;base64,bXAz",
		}, decode(t, resp))
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name   string
			opts   []func(*synhttp.Config)
			path   string
			status int
			want   string
		}{
			{"stt not configured", nil, "/api/speech-to-text", http.StatusServiceUnavailable, "speech-to-text is not configured"},
			{"invalid audio", []func(*synhttp.Config){withSTT("", synapse.ErrAudioInvalid)}, "/api/speech-to-text", http.StatusBadRequest, "invalid audio"},
			{"vendor failure", []func(*synhttp.Config){withSTT("", errors.New("elevenlabs: HTTP 500"))}, "/api/audio-chat", http.StatusBadGateway, "elevenlabs: HTTP 500"},
			{"silence", []func(*synhttp.Config){withSTT(" ", nil)}, "/api/audio-chat", http.StatusUnprocessableEntity, "no speech recognized"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				srv := newServer(t, synapse.ConventionNative, tt.opts...)
				resp := postAudio(t, srv.URL+tt.path, []byte("RIFF"))
				assert.Equal(t, tt.status, resp.StatusCode)
				assert.Equal(t, map[string]any{"error": tt.want}, decode(t, resp))
			})
		}
	})

	t.Run("missing audio field", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, synapse.ConventionNative, withSTT("x", nil))
		resp := postJSON(t, srv.URL+"/api/speech-to-text", `{}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, map[string]any{"error": "audio file is required"}, decode(t, resp))
	})

	t.Run("tts not configured", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, synapse.ConventionNative)
		resp := postJSON(t, srv.URL+"/api/text-to-speech", `{"text":"hi"}`)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		decode(t, resp)
	})
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("synapse_turns_total 1\n"))
	})
	srv := newServer(t, synapse.ConventionNative, func(c *synhttp.Config) { c.Metrics = metrics })

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "synapse_turns_total 1\n", body.String())
}

// countingAgent tracks how many turns run at once.
type countingAgent struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (a *countingAgent) Respond(_ context.Context, s *synapse.Session, text string, _ ...agent.RunOption) string {
	a.mu.Lock()
	a.active++
	a.maxSeen = max(a.maxSeen, a.active)
	a.mu.Unlock()

	s.Append(synapse.NewUserMessage(text))

	a.mu.Lock()
	a.active--
	a.mu.Unlock()
	return "ok"
}

func TestServer_SerializesTurns(t *testing.T) {
	t.Parallel()
	ag := &countingAgent{}
	s := synhttp.NewServer(synhttp.Config{Agent: ag})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"text":"hi"}`))
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ag.maxSeen)
	assert.Equal(t, 8, s.Session().Len())
}

func TestServer_BodyTooLarge(t *testing.T) {
	t.Parallel()
	srv := newServer(t, synapse.ConventionNative, withTTS([]byte("mp3"), nil))
	body := `{"text":"` + strings.Repeat("a", 128<<10) + `"}`

	for _, path := range []string{"/api/chat", "/api/text-to-speech"} {
		t.Run(path, func(t *testing.T) {
			t.Parallel()
			resp := postJSON(t, srv.URL+path, body)
			assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
			assert.Equal(t, map[string]any{"error": "request body too large"}, decode(t, resp))
		})
	}
}

// blockingAgent appends the user text, then waits for release.
type blockingAgent struct {
	started chan struct{}
	release chan struct{}
}

func (a *blockingAgent) Respond(_ context.Context, s *synapse.Session, text string, _ ...agent.RunOption) string {
	s.Append(synapse.NewUserMessage(text))
	close(a.started)
	<-a.release
	return "done"
}

func TestServer_ReadsDuringTurn(t *testing.T) {
	t.Parallel()
	ag := &blockingAgent{started: make(chan struct{}), release: make(chan struct{})}
	srv := httptest.NewServer(synhttp.NewServer(synhttp.Config{Agent: ag}).Handler())
	defer srv.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"text":"book it"}`))
		if assert.NoError(t, err) {
			resp.Body.Close()
		}
	}()
	<-ag.started

	resp, err := http.Get(srv.URL + "/api/conversation-history")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"messages": []any{
		map[string]any{"role": "user", "content": "book it"},
	}}, decode(t, resp))

	resp, err = http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	assert.Equal(t, float64(1), decode(t, resp)["turns"])

	close(ag.release)
	<-done
}
