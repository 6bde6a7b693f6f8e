// Package server exposes the relay over HTTP: the websocket chat
// endpoint, persona management, one-shot capability endpoints and the
// operational probes.
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/voxrelay/voxrelay/internal/chat"
	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/persona"
	"github.com/voxrelay/voxrelay/internal/router"
	"github.com/voxrelay/voxrelay/internal/session"
	"github.com/voxrelay/voxrelay/internal/store"
)

const maxOneShotAudioBytes = 10 << 20

type Server struct {
	cfg          config.Config
	personas     *persona.Registry
	sessions     *session.Manager
	orchestrator *chat.Orchestrator
	router       *router.Router
	transcripts  *store.Store
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

func New(cfg config.Config, personas *persona.Registry, sessions *session.Manager, orchestrator *chat.Orchestrator, r *router.Router, transcripts *store.Store, logger *slog.Logger) *Server {
	return &Server{
		cfg:          cfg,
		personas:     personas,
		sessions:     sessions,
		orchestrator: orchestrator,
		router:       r,
		transcripts:  transcripts,
		logger:       logger.With(slog.String("component", "server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes registers all handlers on mux. metricsHandler may be nil when
// the prometheus exporter failed to initialize; ready gates /readyz.
func (s *Server) Routes(mux *http.ServeMux, metricsHandler http.Handler, ready func() bool) {
	mux.HandleFunc("GET /ws/chat/{session_id}/{persona_id}", s.handleChat)
	mux.HandleFunc("GET /api/roles", s.handleListRoles)
	mux.HandleFunc("GET /api/roles/{id}", s.handleGetRole)
	mux.HandleFunc("POST /api/roles", s.handleCreateRole)
	mux.HandleFunc("POST /api/chat/asr", s.handleTranscribe)
	mux.HandleFunc("POST /api/chat/tts", s.handleSynthesize)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
}

func (s *Server) handleListRoles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.personas.List())
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	p, err := s.personas.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown persona")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createRoleRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"system_prompt"`
	DefaultVoice string `json:"default_voice"`
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid persona payload")
		return
	}
	p, err := s.personas.Create(req.Name, req.Description, req.SystemPrompt, req.DefaultVoice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleTranscribe runs a one-shot transcription. Audio arrives as a
// multipart upload under the "audio" field, or as the raw request body.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudio(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio payload")
		return
	}

	text, err := s.router.TranscribeOnce(r.Context(), audio)
	if err != nil {
		writeError(w, http.StatusBadGateway, "speech recognition failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type synthesizeResponse struct {
	Audio     string `json:"audio"`
	MIME      string `json:"mime"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	text, truncated := chat.TruncateForSpeech(req.Text, s.cfg.TTS.MaxTextLen)

	audio, mime, err := s.router.SynthesizeOnce(r.Context(), text, req.Voice)
	if err != nil {
		writeError(w, http.StatusBadGateway, "speech synthesis failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, synthesizeResponse{
		Audio:     "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(audio),
		MIME:      mime,
		Truncated: truncated,
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	turns, err := s.transcripts.ListTurns(r.Context(), r.PathValue("id"), 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

func readAudio(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxOneShotAudioBytes); err == nil {
		file, _, err := r.FormFile("audio")
		if err != nil {
			return nil, errors.New(`multipart upload needs an "audio" field`)
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, maxOneShotAudioBytes))
	}
	return io.ReadAll(io.LimitReader(r.Body, maxOneShotAudioBytes))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
