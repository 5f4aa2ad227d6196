// Package relay is a minimal STOMP-over-websocket notification server for
// local development. Clients connect with a JWT in the token query
// parameter; notifications are injected over HTTP.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Options configures a Server.
type Options struct {
	// Path serves the websocket handshake. Defaults to "/ws".
	Path string
	// Secret signs and verifies tokens. Empty disables verification.
	Secret string
	Logger zerolog.Logger
}

// NotifyRequest is the body of POST /api/notify.
type NotifyRequest struct {
	User        string          `json:"user"`
	Destination string          `json:"destination"`
	Payload     json.RawMessage `json:"payload"`
}

type notifyResponse struct {
	Delivered int `json:"delivered"`
}

type Server struct {
	hub      *Hub
	auth     *Authenticator
	log      zerolog.Logger
	e        *echo.Echo
	upgrader websocket.Upgrader
}

func NewServer(opts Options) *Server {
	if opts.Path == "" {
		opts.Path = "/ws"
	}
	s := &Server{
		hub:  NewHub(opts.Logger),
		auth: NewAuthenticator(opts.Secret),
		log:  opts.Logger,
		e:    echo.New(),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"v12.stomp", "v11.stomp", "v10.stomp"},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.Recover())

	s.e.GET(opts.Path, s.handleWS)
	s.e.POST("/api/notify", s.handleNotify)
	s.e.GET("/api/subscriptions/:user", s.handleSubscriptions)
	s.e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "clients": s.hub.ClientCount()})
	})
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Auth() *Authenticator { return s.auth }

// Handler exposes the routes for use with httptest or a custom listener.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("relay listening")
	if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// handleWS upgrades every request. Credential problems surface as a STOMP
// ERROR in reply to CONNECT rather than as an HTTP status.
func (s *Server) handleWS(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token = bearer(c.Request().Header.Get(echo.HeaderAuthorization))
	}
	user, authErr := s.auth.User(token)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("relay upgrade failed")
		return nil
	}

	log := s.log.With().Str("remote", c.RealIP()).Logger()
	cl := newClient(s.hub, conn, user, authErr, log)
	s.hub.add(cl)
	go cl.readPump()
	return nil
}

func (s *Server) handleNotify(c echo.Context) error {
	var req NotifyRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.User == "" || req.Destination == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user and destination are required")
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage("{}")
	}

	n := s.hub.Publish(req.User, req.Destination, req.Payload)
	s.log.Debug().Str("user", req.User).Str("destination", req.Destination).Int("delivered", n).Msg("relay notify")
	return c.JSON(http.StatusAccepted, notifyResponse{Delivered: n})
}

func (s *Server) handleSubscriptions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Subscriptions(c.Param("user")))
}

func bearer(h string) string {
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
