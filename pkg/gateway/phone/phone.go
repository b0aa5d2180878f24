package phone

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/cortexmed/scriba/pkg/audio"
	"github.com/cortexmed/scriba/pkg/errorsx"
	"github.com/cortexmed/scriba/pkg/logging"
	"github.com/cortexmed/scriba/pkg/redact"
	"github.com/cortexmed/scriba/pkg/session"
)

type Config struct {
	ServerAddr         string `mapstructure:"server_addr"`
	PublicURL          string `mapstructure:"public_url"`
	AuthToken          string `mapstructure:"auth_token"`
	AccountSID         string `mapstructure:"account_sid"`
	VoicePath          string `mapstructure:"voice_path"`
	WebsocketPath      string `mapstructure:"ws_path"`
	StatusCallbackPath string `mapstructure:"status_callback_path"`
	Greeting           string `mapstructure:"greeting"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8081"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/voice"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/media"
	}
	if c.StatusCallbackPath == "" {
		c.StatusCallbackPath = "/status"
	}
	return c
}

// Gateway accepts phone dictation over Twilio media streams. Calls get
// their own sessions at the telephony sample rate; transcription
// results are written to the log with identifiers redacted, since the
// caller has no return channel for text.
type Gateway struct {
	cfg      Config
	manager  *session.Manager
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu          sync.Mutex
	streams     map[string]*session.Session
	callStreams map[string]string

	draining atomic.Bool
}

func New(cfg Config, manager *session.Manager) *Gateway {
	return &Gateway{
		cfg:     cfg.withDefaults(),
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:      logging.NewComponentLogger(slog.Default(), "phone_gateway"),
		streams:     make(map[string]*session.Session),
		callStreams: make(map[string]string),
	}
}

func (g *Gateway) Name() string { return "phone" }

func (g *Gateway) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(g.cfg.VoicePath, g.handleVoice)
	mux.Handle(g.cfg.WebsocketPath, g)
	mux.HandleFunc(g.cfg.StatusCallbackPath, g.handleStatusCallback)
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
	live := make([]*session.Session, 0, len(g.streams))
	for _, s := range g.streams {
		live = append(live, s)
	}
	g.streams = make(map[string]*session.Session)
	g.callStreams = make(map[string]string)
	g.mu.Unlock()
	for _, s := range live {
		s.End()
	}
	return nil
}

// handleVoice answers Twilio's call webhook with TwiML that connects
// the call's media stream to this gateway.
func (g *Gateway) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.cfg.AuthToken != "" && !g.validateRequest(r) {
		g.logger.Warn("invalid webhook signature",
			slog.String("reason_code", string(errorsx.ReasonTransportInvalidSignature)),
		)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	var twiml string
	greeting := strings.TrimSpace(g.cfg.Greeting)
	if greeting != "" {
		twiml = `<Response><Say>` + xmlEscape(greeting) + `</Say><Connect><Stream url="` + g.mediaURL(r) + `"/></Connect></Response>`
	} else {
		twiml = `<Response><Connect><Stream url="` + g.mediaURL(r) + `"/></Connect></Response>`
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(twiml))
}

// ServeHTTP terminates the Twilio media stream websocket.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var streamID string
	var sess *session.Session
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var evt mediaEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			continue
		}
		switch evt.Event {
		case "start":
			if evt.Start == nil {
				continue
			}
			streamID = evt.Start.StreamID
			sess = g.startStream(streamID, evt.Start.CallSID)
			if sess == nil {
				return
			}
		case "media":
			if sess == nil || evt.Media == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(evt.Media.Payload)
			if err != nil {
				continue
			}
			_ = sess.PushSamples(audio.DecodeMuLaw(payload))
		case "stop":
			g.detach(streamID)
			return
		}
	}
	if streamID != "" {
		g.abort(streamID)
	}
}

func (g *Gateway) startStream(streamID, callSID string) *session.Session {
	cfg := g.manager.DefaultSessionConfig()
	// Telephony media streams are G.711 at 8 kHz.
	cfg.SampleRate = 8000
	sess, err := g.manager.Create(cfg)
	if err != nil {
		g.logger.Warn("call rejected",
			slog.String("call_sid", callSID),
			slog.String("reason_code", string(errorsx.Reason(err))),
		)
		return nil
	}
	g.mu.Lock()
	g.streams[streamID] = sess
	if callSID != "" {
		g.callStreams[callSID] = streamID
	}
	g.mu.Unlock()
	g.logger.Info("call stream attached",
		slog.String("session_id", sess.ID),
		slog.String("call_sid", callSID),
	)
	go g.drainResults(sess, callSID)
	return sess
}

func (g *Gateway) detach(streamID string) {
	if sess := g.remove(streamID); sess != nil {
		sess.End()
	}
}

// abort handles a media stream that died without a stop event. The
// session is discarded, not drained.
func (g *Gateway) abort(streamID string) {
	sess := g.remove(streamID)
	if sess == nil {
		return
	}
	select {
	case <-sess.Done():
	default:
		g.logger.Info("call stream lost",
			slog.String("session_id", sess.ID),
			slog.String("reason_code", string(errorsx.ReasonConnectionLost)),
		)
		sess.Drop()
	}
}

func (g *Gateway) remove(streamID string) *session.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess := g.streams[streamID]
	delete(g.streams, streamID)
	for callSID, sid := range g.callStreams {
		if sid == streamID {
			delete(g.callStreams, callSID)
		}
	}
	return sess
}

// drainResults consumes session events for a call. Phone callers have
// no text back-channel, so transcripts land in the log, redacted.
func (g *Gateway) drainResults(sess *session.Session, callSID string) {
	for ev := range sess.Events() {
		switch ev.Type {
		case session.EventTranscription:
			if ev.Result == nil {
				continue
			}
			g.logger.Info("phone transcription",
				slog.String("session_id", sess.ID),
				slog.String("call_sid", callSID),
				slog.String("text", redact.Text(ev.Result.Text)),
				slog.Float64("quality_score", ev.Result.QualityScore),
			)
		case session.EventError:
			g.logger.Warn("phone chunk failed",
				slog.String("session_id", sess.ID),
				slog.String("reason_code", string(ev.Reason)),
			)
		}
	}
}

func (g *Gateway) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.cfg.AuthToken != "" && !g.validateRequest(r) {
		g.logger.Warn("invalid status signature",
			slog.String("reason_code", string(errorsx.ReasonTransportInvalidSignature)),
		)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	callSID := r.FormValue("CallSid")
	status := strings.ToLower(r.FormValue("CallStatus"))
	switch status {
	case "completed", "busy", "no-answer", "failed", "canceled":
	default:
		w.WriteHeader(http.StatusOK)
		return
	}
	g.mu.Lock()
	streamID := g.callStreams[callSID]
	sess := g.streams[streamID]
	g.mu.Unlock()
	if sess != nil {
		// The call is gone; there is nothing left to wait for.
		sess.Drop()
		g.detach(streamID)
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) validateRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || g.cfg.AuthToken == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(g.cfg.AuthToken)
	return validator.ValidateBody(g.requestURL(r), body, signature)
}

func (g *Gateway) requestURL(r *http.Request) string {
	if g.cfg.PublicURL != "" {
		return strings.TrimRight(g.cfg.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(g.cfg.ServerAddr, ":")
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func (g *Gateway) mediaURL(r *http.Request) string {
	if g.cfg.PublicURL != "" {
		return "wss://" + stripScheme(g.cfg.PublicURL) + g.cfg.WebsocketPath
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(g.cfg.ServerAddr, ":")
	}
	return "wss://" + host + g.cfg.WebsocketPath
}

func stripScheme(v string) string {
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}

func xmlEscape(in string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(in)
}

type mediaStart struct {
	CallSID  string `json:"callSid"`
	StreamID string `json:"streamSid"`
	From     string `json:"from"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type mediaStop struct {
	Reason string `json:"reason"`
}

type mediaEvent struct {
	Event string        `json:"event"`
	Start *mediaStart   `json:"start,omitempty"`
	Media *mediaPayload `json:"media,omitempty"`
	Stop  *mediaStop    `json:"stop,omitempty"`
}
