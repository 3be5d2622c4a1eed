package stream

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-gateway/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The demo client may be served from anywhere
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HandlerConfig holds the connection level policy of a Handler. The zero
// value applies no rate limit, trusts no proxy and keeps the websocket
// default read limit.
type HandlerConfig struct {
	Limiter        *RateLimiter
	Proxies        *ProxyTrust
	MaxMessageSize int64
}

// Handler upgrades requests to websocket and runs a Session on each.
type Handler struct {
	synth  Synthesizer
	opts   Options
	cfg    HandlerConfig
	logger zerolog.Logger
}

// NewHandler creates the streaming endpoint.
func NewHandler(s Synthesizer, opts Options, cfg HandlerConfig) *Handler {
	logger := observability.GetLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Handler{
		synth:  s,
		opts:   opts,
		cfg:    cfg,
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := h.cfg.Proxies.ClientIP(r)
	if h.cfg.Limiter != nil && !h.cfg.Limiter.Allow(ip) {
		observability.RecordRejectedConnection()
		h.logger.Warn().Str("client_ip", ip).Msg("Connection rate limited")
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Warn().Err(err).Str("client_ip", ip).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}

	opts := h.opts
	logger := h.logger.With().
		Str("correlation_id", observability.NewCorrelationID()).
		Str("client_ip", ip).
		Logger()
	opts.Logger = &logger

	session := NewSession(conn, h.synth, opts)
	if err := session.Run(r.Context()); err != nil {
		logger.Debug().Err(err).Str("session_id", session.ID()).Msg("Session finished with error")
	}
}

// HandleEcho serves a websocket that answers each text with a quoted echo.
// It is a connectivity check for clients.
func HandleEcho(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to upgrade echo connection")
			return
		}
		defer conn.Close()

		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug().Err(err).Msg("Echo read error")
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			reply := fmt.Sprintf("Your message was: \"%s\"", data)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}
}
