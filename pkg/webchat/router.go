package webchat

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ChatRequest is the inbound chat message, from either the websocket or the
// request/response endpoint.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	User      string `json:"user,omitempty"`
}

// ChatResponse is the request/response-mode reply.
type ChatResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/ws/", s.handleWebSocket)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/sessions", s.handleSessions)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	b, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/"), "/")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("component", "webchat").Msg("websocket upgrade failed")
		return
	}
	sess, err := s.registry.Register(s.baseCtx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("component", "webchat").Str("session_id", sessionID).Msg("session registration failed")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"failed to join session"}`))
		_ = conn.Close()
		return
	}
	sess.Pool().Add(conn)
	log.Info().Str("component", "webchat").Str("session_id", sessionID).Msg("client connected")
	go s.readLoop(sess, conn)
}

// readLoop receives chat requests from one websocket until it closes. Each
// request is dispatched on its own goroutine so a long agent stream never
// blocks the receive path.
func (s *Server) readLoop(sess *Session, conn *websocket.Conn) {
	defer func() {
		sess.Pool().Remove(conn)
		if sess.Pool().Count() == 0 {
			s.registry.Remove(sess.ID)
		}
		log.Info().Str("component", "webchat").Str("session_id", sess.ID).Msg("client disconnected")
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Warn().Err(err).
				Str("component", "webchat").
				Str("session_id", sess.ID).
				Msg("discarding malformed client message")
			continue
		}
		if strings.TrimSpace(req.Message) == "" {
			continue
		}
		user := req.User
		if user == "" {
			user = "anonymous"
		}
		go func(msg, user string) {
			if _, err := s.chat.Handle(s.baseCtx, sess.ID, msg, user); err != nil {
				log.Error().Err(err).
					Str("component", "webchat").
					Str("session_id", sess.ID).
					Msg("chat request failed")
			}
		}(req.Message, user)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "missing message", http.StatusBadRequest)
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	user := req.User
	if user == "" {
		user = "anonymous"
	}

	resp := ChatResponse{SessionID: sessionID, Timestamp: nowRFC3339()}
	res, err := s.chat.Handle(r.Context(), sessionID, req.Message, user)
	if err != nil {
		resp.Status = "error"
		resp.Message = "Error: " + err.Error()
	} else {
		resp.Status = "success"
		resp.Message = res.Message
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"timestamp": nowRFC3339(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"active_sessions": s.registry.List(),
		"count":           s.registry.Count(),
	})
}
