package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/agents"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/approval"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/engine"
	"github.com/Marcus990/Cymbal-Bank-Orchestra/store"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second

	// outBuffer bounds the per-connection outbound queue.
	outBuffer = 64
)

// Server is the gateway process: a websocket endpoint per user session plus
// the HTTP transaction-history API.
type Server struct {
	router        *engine.Router
	gate          *approval.Gate
	conversations *store.Conversations
	remoteTimeout time.Duration
	upgrader      websocket.Upgrader
	log           zerolog.Logger
}

// New wires the gateway.
func New(router *engine.Router, gate *approval.Gate, conversations *store.Conversations, remoteTimeout time.Duration, log zerolog.Logger) *Server {
	return &Server{
		router:        router,
		gate:          gate,
		conversations: conversations,
		remoteTimeout: remoteTimeout,
		log:           log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway fronts a browser app served elsewhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP mux for the gateway.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{user_id}", s.handleWebsocket)
	mux.HandleFunc("GET /api/transaction-history/{user_id}", s.handleTransactionHistory)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// session holds the per-connection state: the conversational session, the
// outbound frame queue, and the in-flight turn (if any).
type session struct {
	sess  *core.Session
	out   chan ServerFrame
	audio bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	agentID := r.URL.Query().Get("agent_id")
	if agentID == agents.RootAgentName {
		agentID = ""
	}
	if agentID != "" && !agents.SessionAgents[agentID] {
		http.Error(w, "unknown agent_id", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	conn := &session{
		sess:  core.NewSession(uuid.NewString(), userID, agentID),
		out:   make(chan ServerFrame, outBuffer),
		audio: r.URL.Query().Get("is_audio") == "true",
	}

	log := s.log.With().
		Str("session_id", conn.sess.ID).
		Str("user_id", userID).
		Str("agent_id", agentID).
		Bool("audio", conn.audio).
		Logger()
	log.Info().Msg("client connected")
	defer log.Info().Msg("client disconnected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// First error from either pump tears the connection down.
	errCh := make(chan error, 2)
	go func() { errCh <- s.writePump(ctx, ws, conn.out) }()
	go func() { errCh <- s.readPump(ctx, ws, conn, log) }()

	<-errCh
	cancel()
	conn.interrupt(false)
}

func (s *Server) writePump(ctx context.Context, ws *websocket.Conn, out <-chan ServerFrame) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-out:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(frame); err != nil {
				return err
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) readPump(ctx context.Context, ws *websocket.Conn, conn *session, log zerolog.Logger) error {
	ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var frame ClientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			return err
		}

		switch frame.MimeType {
		case MimeText:
			text, ok := frame.Text()
			if !ok || text == "" {
				continue
			}
			// New input while a turn is running interrupts it.
			conn.interrupt(true)
			s.startTurn(ctx, conn, text, log)

		case MimeJSON:
			decision, ok := frame.Decision()
			if !ok {
				log.Warn().Msg("unparseable control frame")
				continue
			}
			if !s.gate.Resolve(decision.ApprovalID, decision.Approved) {
				log.Warn().Str("approval_id", decision.ApprovalID).Msg("decision for unknown approval")
			}

		case MimeAudio:
			// Audio transcription is handled upstream of the gateway; raw
			// frames are acknowledged and dropped.
			log.Debug().Msg("audio frame ignored")

		default:
			log.Warn().Str("mime_type", frame.MimeType).Msg("unsupported frame type")
		}
	}
}

// startTurn runs one user turn in its own goroutine so the read pump stays
// responsive to interruptions and approval decisions.
func (s *Server) startTurn(ctx context.Context, conn *session, text string, log zerolog.Logger) {
	turnCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	conn.mu.Lock()
	conn.cancel = cancel
	conn.done = done
	conn.mu.Unlock()

	emit := conn.emit

	go func() {
		defer close(done)
		defer cancel()

		reply, err := s.router.RunTurn(turnCtx, conn.sess, text, emit)
		if turnCtx.Err() != nil {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
			emit(core.Event{Type: core.EventTextChunk, Text: "Sorry, something went wrong handling that request."})
			emit(core.Event{Type: core.EventTurnComplete})
			return
		}

		s.conversations.Append(conn.sess.ID, conn.sess.UserID, conn.sess.ActiveAgent, core.NewUserMessage(text))
		s.conversations.Append(conn.sess.ID, conn.sess.UserID, conn.sess.ActiveAgent, core.NewAssistantMessage(reply))

		emit(core.Event{Type: core.EventTextChunk, Text: reply})
		emit(core.Event{Type: core.EventTranscript, Text: reply})
		emit(core.Event{Type: core.EventTurnComplete})
	}()
}

// interrupt cancels the in-flight turn, if any. When notify is set the
// client is told the turn was cut off.
func (c *session) interrupt(notify bool) {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	if notify {
		c.emit(core.Event{Type: core.EventInterrupted})
	}
}

// emit translates a turn event into its wire frame and queues it.
func (c *session) emit(ev core.Event) {
	if frame, ok := frameForEvent(ev); ok {
		c.send(frame)
	}
}

// send queues a frame, dropping it if the client cannot keep up.
func (c *session) send(frame ServerFrame) {
	select {
	case c.out <- frame:
	default:
	}
}
