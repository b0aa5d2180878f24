package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cortexmed/scriba/pkg/errorsx"
	"github.com/cortexmed/scriba/pkg/logging"
	"github.com/cortexmed/scriba/pkg/session"
)

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	HealthPath     string   `mapstructure:"health_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/healthz"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Gateway terminates client websocket connections and bridges them to
// sessions. One connection maps to one session for its whole lifetime.
type Gateway struct {
	cfg      Config
	manager  *session.Manager
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*wsConn

	draining atomic.Bool
}

func New(cfg Config, manager *session.Manager) *Gateway {
	cfg = cfg.withDefaults()
	g := &Gateway{
		cfg:     cfg,
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logging.NewComponentLogger(slog.Default(), "ws_gateway"),
		conns:  make(map[string]*wsConn),
	}
	g.upgrader.CheckOrigin = g.checkOrigin
	return g
}

func (g *Gateway) Name() string { return "ws" }

func (g *Gateway) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.Handle(g.cfg.WebsocketPath, g)
	mux.HandleFunc(g.cfg.HealthPath, g.handleHealth)
	g.server = &http.Server{
		Addr:              g.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = g.server.Close()
	}()
	go func() {
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (g *Gateway) Stop() error {
	g.draining.Store(true)
	if g.server != nil {
		_ = g.server.Close()
	}
	g.mu.Lock()
	for _, wc := range g.conns {
		wc.close()
	}
	g.conns = make(map[string]*wsConn)
	g.mu.Unlock()
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := g.manager.Ready(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "unavailable",
			"reason": string(errorsx.Reason(err)),
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	// The session is created first so capacity rejections happen before
	// the upgrade, with no session state left behind.
	sess, err := g.manager.Create(g.manager.DefaultSessionConfig())
	if err != nil {
		if errorsx.HasReason(err, errorsx.ReasonCapacity) {
			http.Error(w, "capacity exceeded", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sess.Drop()
		return
	}

	wc := &wsConn{conn: conn, sendCh: make(chan []byte, 256)}
	g.attach(sess.ID, wc)
	go wc.loop()
	go g.pumpEvents(sess, wc)

	g.readLoop(sess, wc)
}

// readLoop consumes client envelopes until the connection dies or the
// session ends.
func (g *Gateway) readLoop(sess *session.Session, wc *wsConn) {
	for {
		_, raw, err := wc.conn.ReadMessage()
		if err != nil {
			// Normal closure follows end_session; anything else is a
			// lost connection and takes the drop path.
			select {
			case <-sess.Done():
			default:
				g.logger.Info("connection lost",
					slog.String("session_id", sess.ID),
					slog.String("reason_code", string(errorsx.ReasonConnectionLost)),
				)
				sess.Drop()
			}
			return
		}
		g.handleMessage(sess, wc, raw)
	}
}

func (g *Gateway) handleMessage(sess *session.Session, wc *wsConn, raw []byte) {
	msg, err := ParseClientMessage(raw)
	if err != nil {
		g.protocolError(sess, wc, "malformed message")
		return
	}
	switch msg.Type {
	case "config":
		if msg.Config == nil {
			g.protocolError(sess, wc, "config message without config payload")
			return
		}
		_ = sess.UpdateConfig(msg.Config.patch())
	case "audio":
		data, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			g.protocolError(sess, wc, "audio payload is not valid base64")
			return
		}
		_ = sess.PushAudio(data)
	case "end_session":
		sess.End()
	default:
		g.protocolError(sess, wc, "unknown message type "+strings.TrimSpace(msg.Type))
	}
}

func (g *Gateway) protocolError(sess *session.Session, wc *wsConn, detail string) {
	g.logger.Warn("protocol error",
		slog.String("session_id", sess.ID),
		slog.String("reason_code", string(errorsx.ReasonProtocol)),
		slog.String("detail", detail),
	)
	wc.enqueue(encodeError(detail))
}

// pumpEvents forwards session events to the socket. The events channel
// closes after session_ended, which tears the connection down.
func (g *Gateway) pumpEvents(sess *session.Session, wc *wsConn) {
	for ev := range sess.Events() {
		b, err := encodeEvent(ev)
		if err != nil {
			continue
		}
		if !wc.enqueue(b) {
			g.logger.Warn("event not delivered",
				slog.String("session_id", sess.ID),
				slog.String("reason", string(errorsx.ReasonTransportSend)),
			)
		}
	}
	g.detach(sess.ID)
}

func (g *Gateway) attach(id string, wc *wsConn) {
	g.mu.Lock()
	g.conns[id] = wc
	g.mu.Unlock()
}

func (g *Gateway) detach(id string) {
	g.mu.Lock()
	wc := g.conns[id]
	delete(g.conns, id)
	g.mu.Unlock()
	if wc != nil {
		wc.close()
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range g.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

type wsConn struct {
	conn   *websocket.Conn
	sendCh chan []byte
	mu     sync.Mutex
	closed bool
}

func (c *wsConn) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.sendCh <- b:
		return true
	default:
		return false
	}
}

func (c *wsConn) loop() {
	for msg := range c.sendCh {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
	_ = c.conn.Close()
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
}
