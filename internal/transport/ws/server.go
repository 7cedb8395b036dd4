package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sandevgo/oppsbot/internal/config"
	"github.com/sandevgo/oppsbot/internal/core"
	"github.com/sandevgo/oppsbot/pkg/log"
)

// Runner is the slice of the agent the transport needs.
type Runner interface {
	Run(ctx context.Context, sessionID string, input string, onUpdate func(core.Message)) (string, error)
}

// Frame is one websocket message in either direction.
type Frame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

const (
	FrameUser      = "user"
	FrameAssistant = "assistant"
	FrameError     = "error"
)

// Server exposes the assistant over HTTP: a websocket chat at /ws, a
// one-shot POST /chat for scripted clients, and a health probe.
type Server struct {
	cfg     *config.AppConfig
	agent   Runner
	httpSrv *http.Server

	upgrader websocket.Upgrader

	// One turn at a time per session; concurrent turns on the same
	// session would interleave transcript rows.
	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

func NewServer(agent Runner, cfg *config.AppConfig) *Server {
	s := &Server{
		cfg:      cfg,
		agent:    agent,
		sessions: make(map[string]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.sessions[id]
	if !ok {
		lock = &sync.Mutex{}
		s.sessions[id] = lock
	}
	return lock
}

// newSessionID mints a session id for one websocket connection, so a
// reconnecting client starts with a clean transcript.
func newSessionID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("ws-%d", time.Now().UnixNano())
	}
	return "ws-" + hex.EncodeToString(buf)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromCtx(ctx)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sessionID := newSessionID()
	logger.Info().Str("session", sessionID).Msg("websocket session opened")

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error().Err(err).Str("session", sessionID).Msg("websocket read failed")
			}
			return
		}

		if frame.Type != FrameUser || frame.Content == "" {
			s.writeFrame(ctx, conn, Frame{Type: FrameError, Content: "expected a non-empty user frame"})
			continue
		}

		_, err := s.agent.Run(ctx, sessionID, frame.Content, func(msg core.Message) {
			if msg.Content != "" {
				s.writeFrame(ctx, conn, Frame{Type: FrameAssistant, Content: msg.Content})
			}
		})
		if err != nil {
			logger.Error().Err(err).Str("session", sessionID).Msg("agent run failed")
			s.writeFrame(ctx, conn, Frame{Type: FrameError, Content: userFacingError(err)})
		}
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, frame Frame) {
	if err := conn.WriteJSON(frame); err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("websocket write failed")
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Message == "" {
		http.Error(w, "session_id and message are required", http.StatusBadRequest)
		return
	}

	lock := s.sessionLock(req.SessionID)
	lock.Lock()
	reply, err := s.agent.Run(r.Context(), req.SessionID, req.Message, nil)
	lock.Unlock()

	if err != nil {
		log.FromCtx(r.Context()).Error().Err(err).Str("session", req.SessionID).Msg("agent run failed")
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrModelUnavailable) {
			status = http.StatusBadGateway
		}
		http.Error(w, userFacingError(err), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(chatResponse{SessionID: req.SessionID, Reply: reply}); err != nil {
		log.FromCtx(r.Context()).Error().Err(err).Msg("failed to encode chat response")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// userFacingError keeps backend detail out of client-visible messages.
func userFacingError(err error) string {
	if errors.Is(err, core.ErrModelUnavailable) {
		return "The language model is currently unavailable. Please try again shortly."
	}
	return "Something went wrong handling that message."
}
