package server

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/conneroisu/tsxlive/internal/logging"
	"github.com/conneroisu/tsxlive/internal/preview"
	"github.com/conneroisu/tsxlive/internal/sandbox"
	"github.com/conneroisu/tsxlive/internal/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer. Sources can be large.
	maxMessageSize = 1 << 20

	sendBuffer = 64
)

// Message types on the session socket.
const (
	MessageSource     = "source"
	MessageFlush      = "flush"
	MessageSession    = "session"
	MessageCompiled   = "compiled"
	MessageDiagnostic = "diagnostic"
	MessageRendered   = "rendered"
	MessageError      = "error"
)

// Message is the JSON envelope for both directions.
type Message struct {
	Type       string             `json:"type"`
	Session    string             `json:"session,omitempty"`
	ID         types.RequestID    `json:"id,omitempty"`
	Source     string             `json:"source,omitempty"`
	Language   string             `json:"language,omitempty"`
	Code       string             `json:"code,omitempty"`
	Diagnostic *types.Diagnostic  `json:"diagnostic,omitempty"`
	HTML       string             `json:"html,omitempty"`
	Error      string             `json:"error,omitempty"`
	Logs       []sandbox.LogEntry `json:"logs,omitempty"`
}

// Session is one websocket client and its pipeline.
type Session struct {
	id       string
	conn     *websocket.Conn
	pipeline *preview.Pipeline
	logger   logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	send   chan Message

	closeOnce sync.Once
}

// ID returns the session id sent to the client on connect.
func (s *Session) ID() string {
	return s.id
}

// Close releases the pipeline and closes the socket. Safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.pipeline.Close()
		s.conn.Close(websocket.StatusNormalClosure, "")
	})
}

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Validate origin before accepting connection
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	session, err := s.newSession(conn)
	if err != nil {
		s.logger.Error(r.Context(), err, "Creating session failed")
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	s.addSession(session)
	defer func() {
		s.removeSession(session.id)
		session.Close()
		s.logger.Info(context.Background(), "Session closed", "session", session.id)
	}()
	s.logger.Info(r.Context(), "Session opened", "session", session.id, "sessions", s.SessionCount())

	go session.writePump()
	session.enqueue(Message{Type: MessageSession, Session: session.id})
	session.readPump()
}

func (s *PreviewServer) newSession(conn *websocket.Conn) (*Session, error) {
	id := uuid.NewString()
	logger := s.logger.With("session", id)
	ctx, cancel := context.WithCancel(context.Background())

	session := &Session{
		id:     id,
		conn:   conn,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan Message, sendBuffer),
	}

	cfg := s.config
	opts := []preview.Option{
		preview.WithDelay(cfg.Compile.Debounce),
		preview.WithWorkers(cfg.Compile.Workers),
		preview.WithQueueSize(cfg.Compile.QueueSize),
		preview.WithMetrics(s.metrics),
		preview.WithLogger(logger),
		preview.WithContainer(cfg.Sandbox.ContainerID),
		preview.WithListener(session.onEvent),
	}
	if s.cache != nil {
		opts = append(opts, preview.WithCache(s.cache))
	}
	if cfg.Sandbox.Enabled {
		sb, err := sandbox.New(
			sandbox.WithScriptID(cfg.Sandbox.ScriptID),
			sandbox.WithTimeout(cfg.Sandbox.Timeout),
			sandbox.WithGlobals(cfg.Compile.GlobalMap()),
			sandbox.WithSurface(sandbox.NewSurface(cfg.Sandbox.ContainerID)),
			sandbox.WithLogger(logger),
		)
		if err != nil {
			cancel()
			return nil, err
		}
		opts = append(opts, preview.WithSandbox(sb))
	}

	session.pipeline = preview.New(s.engine, opts...)
	return session, nil
}

// onEvent runs on compile worker goroutines.
func (s *Session) onEvent(ev preview.Event) {
	msg := Message{Type: string(ev.Kind), ID: ev.RequestID}
	switch ev.Kind {
	case preview.EventCompiled:
		msg.Type = MessageCompiled
		msg.Code = ev.Code
	case preview.EventDiagnostic:
		msg.Type = MessageDiagnostic
		msg.Diagnostic = ev.Diagnostic
	case preview.EventRendered:
		msg.Type = MessageRendered
		msg.HTML = ev.HTML
		if ev.Execution != nil {
			msg.Logs = ev.Execution.Logs
			if ev.Execution.Err != nil {
				msg.Error = ev.Execution.Err.Error()
			}
		}
	}
	s.enqueue(msg)
}

func (s *Session) enqueue(msg Message) {
	select {
	case <-s.ctx.Done():
	case s.send <- msg:
	default:
		s.logger.Warn(s.ctx, nil, "Session send buffer full, dropping message",
			"type", msg.Type, "request_id", msg.ID)
	}
}

// readPump pumps messages from the websocket connection
func (s *Session) readPump() {
	for {
		var msg Message
		if err := wsjson.Read(s.ctx, s.conn, &msg); err != nil {
			// Check if it's a normal closure
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && s.ctx.Err() == nil {
				s.logger.Debug(context.Background(), "WebSocket read ended", "error", err.Error())
			}
			return
		}

		switch msg.Type {
		case MessageSource:
			lang, err := types.ParseLanguage(msg.Language)
			if err != nil {
				s.enqueue(Message{Type: MessageError, Error: err.Error()})
				continue
			}
			s.pipeline.Update(types.SourceDocument{Source: msg.Source, Language: lang})
		case MessageFlush:
			s.pipeline.Flush()
		default:
			s.enqueue(Message{Type: MessageError, Error: "unknown message type " + msg.Type})
		}
	}
}

// writePump pumps messages to the websocket connection
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.send:
			writeCtx, cancel := context.WithTimeout(s.ctx, writeWait)
			err := wsjson.Write(writeCtx, s.conn, msg)
			cancel()
			if err != nil {
				s.logger.Debug(context.Background(), "WebSocket write failed", "error", err.Error())
				s.cancel()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, writeWait)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.cancel()
				return
			}
		}
	}
}

// checkOrigin validates the request origin for security
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Reject connections without origin header for security
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	// Same host as the request is always fine.
	if originURL.Host == r.Host {
		return true
	}
	for _, pattern := range s.originPatterns() {
		if matchOrigin(pattern, originURL.Host) {
			return true
		}
	}
	return false
}

func (s *PreviewServer) originPatterns() []string {
	port := s.config.Server.Port
	patterns := []string{
		s.config.Addr(),
		"localhost:" + strconv.Itoa(port),
		"127.0.0.1:" + strconv.Itoa(port),
	}
	return append(patterns, s.config.Server.AllowedOrigins...)
}

// allowedCrossOrigin reports whether a browser page on origin may call the
// HTTP API. Only the configured allowed_origins qualify.
func (s *PreviewServer) allowedCrossOrigin(origin string) bool {
	originURL, err := url.Parse(origin)
	if err != nil || (originURL.Scheme != "http" && originURL.Scheme != "https") {
		return false
	}
	for _, pattern := range s.config.Server.AllowedOrigins {
		if matchOrigin(pattern, originURL.Host) {
			return true
		}
	}
	return false
}

// matchOrigin matches host against a pattern such as "*.example.com" or
// "localhost:*".
func matchOrigin(pattern, host string) bool {
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(host))
	return err == nil && ok
}
