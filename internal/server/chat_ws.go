package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxrelay/voxrelay/internal/chat"
	"github.com/voxrelay/voxrelay/internal/event"
	"github.com/voxrelay/voxrelay/internal/session"
)

// handleChat owns one websocket conversation. Text frames carry a text
// turn, binary frames carry one turn's worth of encoded audio. Events
// stream back as JSON; closing the socket closes the session and
// cancels any in-flight turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	personaID := r.PathValue("persona_id")

	p, err := s.personas.Get(personaID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown persona")
		return
	}

	// The audio decision belongs to the client, made once per
	// connection. Anything but an explicit "false" keeps audio on.
	wantAudio := r.URL.Query().Get("enable_tts") != "false"

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sess := s.sessions.GetOrCreate(sessionID, p)
	defer s.sessions.Close(sessionID)

	if s.transcripts != nil {
		if err := s.transcripts.AppendSession(context.Background(), sessionID, p.ID); err != nil {
			s.logger.Warn("failed to record session", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		}
	}

	s.logger.Info("chat connected",
		slog.String("session_id", sessionID),
		slog.String("persona", p.ID),
		slog.Bool("want_audio", wantAudio))

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("chat read failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
			}
			return
		}

		turn := chat.Turn{WantAudio: wantAudio}
		switch msgType {
		case websocket.TextMessage:
			turn.Text = string(payload)
		case websocket.BinaryMessage:
			turn.Audio = payload
		default:
			continue
		}

		if err := s.runTurn(conn, sess, turn); err != nil {
			return
		}
	}
}

// runTurn admits, executes and streams one turn. A non-nil return
// means the connection is no longer usable.
func (s *Server) runTurn(conn *websocket.Conn, sess *session.Session, turn chat.Turn) error {
	permit, err := s.sessions.AdmitTurn(context.Background(), sess.ID)
	if err != nil {
		if errors.Is(err, session.ErrSessionBusy) {
			return conn.WriteJSON(event.Error("a turn is already in progress for this session"))
		}
		return conn.WriteJSON(event.Error("session is gone"))
	}
	defer permit.Release()

	ctx, cancel := context.WithTimeout(permit.Context(), time.Duration(s.cfg.Chat.TurnTimeoutMS)*time.Millisecond)
	defer cancel()

	events := s.orchestrator.RunTurn(ctx, permit.Session(), turn)
	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// The client went away; stop the pipeline and drain so
			// the orchestrator goroutine can exit.
			permit.Release()
			for range events {
			}
			return err
		}
	}
	return nil
}
