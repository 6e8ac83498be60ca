// Package http serves the trading assistant over a JSON API.
package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/synapse"
	"github.com/fwojciec/synapse/agent"
)

const (
	// maxUploadBytes bounds multipart audio uploads.
	maxUploadBytes = 11 << 20
	// maxJSONBytes bounds JSON request bodies.
	maxJSONBytes = 64 << 10
)

// Responder runs one trader turn and returns the reply text.
// *agent.Loop satisfies it.
type Responder interface {
	Respond(ctx context.Context, session *synapse.Session, userText string, opts ...agent.RunOption) string
}

// Config holds a Server's collaborators. Agent is required; the speech
// clients, Trades and Metrics are optional.
type Config struct {
	Agent        Responder
	SystemPrompt string
	Tools        []string
	Convention   synapse.Convention
	STT          synapse.SpeechToText
	TTS          synapse.TextToSpeech
	Trades       synapse.TradeStore
	Metrics      http.Handler
	Logger       *slog.Logger
}

// Server owns one conversation session and serves it over HTTP. Turns on
// the session are serialized; history and status stay readable while a
// turn runs.
type Server struct {
	cfg    Config
	logger *slog.Logger

	turn    sync.Mutex
	mu      sync.RWMutex
	session *synapse.Session
}

// NewServer creates a Server with a fresh session.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		session: synapse.NewSession(cfg.SystemPrompt),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/speech-to-text", s.handleSpeechToText)
	mux.HandleFunc("POST /api/text-to-speech", s.handleTextToSpeech)
	mux.HandleFunc("POST /api/audio-chat", s.handleAudioChat)
	mux.HandleFunc("GET /api/conversation-history", s.handleHistory)
	mux.HandleFunc("DELETE /api/conversation-history", s.handleReset)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.logger.Info("starting http server", slog.String("addr", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Session returns the current session.
func (s *Server) Session() *synapse.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "synapse",
		"message": "FX trading assistant API",
		"endpoints": []string{
			"/api/chat", "/api/speech-to-text", "/api/text-to-speech",
			"/api/audio-chat", "/api/conversation-history", "/api/health", "/api/status",
		},
	})
}

type chatRequest struct {
	Text string `json:"text"`
}

type chatResponse struct {
	Text     string `json:"text"`
	AudioURL string `json:"audio_url"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeText(w, r)
	if !ok {
		return
	}
	reply := s.respond(r.Context(), req.Text)
	writeJSON(w, http.StatusOK, chatResponse{Text: reply, AudioURL: s.audioURL(r.Context(), reply)})
}

func (s *Server) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	text, ok := s.transcribe(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleTextToSpeech(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TTS == nil {
		writeError(w, http.StatusServiceUnavailable, "text-to-speech is not configured")
		return
	}
	req, ok := decodeText(w, r)
	if !ok {
		return
	}
	audio, err := s.cfg.TTS.TextToSpeech(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("text to speech", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

type audioChatResponse struct {
	Transcript string `json:"transcript"`
	Text       string `json:"text"`
	AudioURL   string `json:"audio_url"`
}

func (s *Server) handleAudioChat(w http.ResponseWriter, r *http.Request) {
	transcript, ok := s.transcribe(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(transcript) == "" {
		writeError(w, http.StatusUnprocessableEntity, "no speech recognized")
		return
	}
	reply := s.respond(r.Context(), transcript)
	writeJSON(w, http.StatusOK, audioChatResponse{
		Transcript: transcript,
		Text:       reply,
		AudioURL:   s.audioURL(r.Context(), reply),
	})
}

type historyEntry struct {
	Role    synapse.Role `json:"role"`
	Content string       `json:"content"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs := s.Session().Snapshot()
	entries := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, historyEntry{Role: m.Role(), Content: messageText(m)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.session = synapse.NewSession(s.cfg.SystemPrompt)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	turns := 0
	for _, m := range s.Session().Snapshot() {
		if m.Role() == synapse.RoleUser {
			turns++
		}
	}
	status := map[string]any{
		"tools":      s.cfg.Tools,
		"convention": s.cfg.Convention,
		"turns":      turns,
		"stt":        s.cfg.STT != nil,
		"tts":        s.cfg.TTS != nil,
	}
	if s.cfg.Trades != nil {
		trades, err := s.cfg.Trades.Trades(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		status["trades"] = len(trades)
	}
	writeJSON(w, http.StatusOK, status)
}

// respond runs one turn on the current session. The turn lock is held for
// the whole turn; a reset during the turn leaves it on the old session.
func (s *Server) respond(ctx context.Context, text string) string {
	s.turn.Lock()
	defer s.turn.Unlock()
	return s.cfg.Agent.Respond(ctx, s.Session(), text)
}

// decodeText reads a bounded {"text": ...} body. It writes the error
// response itself and reports whether to continue.
func decodeText(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(&req)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return req, false
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	case strings.TrimSpace(req.Text) == "":
		writeError(w, http.StatusBadRequest, "text is required")
		return req, false
	}
	return req, true
}

// transcribe reads the multipart "audio" field and runs speech to text. It
// writes the error response itself and reports whether to continue.
func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.cfg.STT == nil {
		writeError(w, http.StatusServiceUnavailable, "speech-to-text is not configured")
		return "", false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return "", false
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read audio: "+err.Error())
		return "", false
	}
	text, err := s.cfg.STT.SpeechToText(r.Context(), audio)
	switch {
	case errors.Is(err, synapse.ErrAudioInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	case err != nil:
		s.logger.Error("speech to text", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
		return "", false
	}
	return text, true
}

// audioURL synthesizes reply as a data URL. Synthesis failures are logged
// and yield an empty URL.
func (s *Server) audioURL(ctx context.Context, reply string) string {
	if s.cfg.TTS == nil || strings.TrimSpace(reply) == "" {
		return ""
	}
	audio, err := s.cfg.TTS.TextToSpeech(ctx, reply)
	if err != nil {
		s.logger.Warn("synthesize reply", slog.String("error", err.Error()))
		return ""
	}
	return "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio)
}

func messageText(m synapse.Message) string {
	switch m := m.(type) {
	case synapse.UserMessage:
		var b strings.Builder
		for _, c := range m.Content {
			if tb, ok := c.(synapse.TextBlock); ok {
				b.WriteString(tb.Text)
			}
		}
		return b.String()
	case synapse.AssistantMessage:
		return m.Text()
	case synapse.ToolResultMessage:
		parts := make([]string, len(m.Results))
		for i, r := range m.Results {
			parts[i] = r.Result.Text()
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
