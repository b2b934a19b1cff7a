package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/frame"
)

// Engine.IO packet types
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO packet types, carried inside Engine.IO messages
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

var (
	// ErrHandshake is returned when the server does not complete the socket.io handshake.
	ErrHandshake = errors.New("socket.io handshake failed")
	// ErrServerClosed is returned when the server ends the session.
	ErrServerClosed = errors.New("socket.io server closed the session")
)

// RGBDConfig configures the rgbd sink.
type RGBDConfig struct {
	URL        string // http(s) or ws(s) address of the rgbd server
	EngineIO   int    // 3 for socket.io 1.x/2.x servers, 4 for 3.x/4.x
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Multiplier float64
}

type openPacket struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// RGBD emits frames as socket.io "frame" events over a websocket, reconnecting
// with exponential backoff when the connection drops.
type RGBD struct {
	cfg    RGBDConfig
	wsURL  string
	dialer *websocket.Dialer
	box    *mailbox

	connected atomic.Bool
}

// NewRGBD creates an rgbd sink. The connection is made by Run.
func NewRGBD(cfg RGBDConfig) (*RGBD, error) {
	if cfg.EngineIO == 0 {
		cfg.EngineIO = 4
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}

	wsURL, err := socketURL(cfg.URL, cfg.EngineIO)
	if err != nil {
		return nil, err
	}

	return &RGBD{
		cfg:   cfg,
		wsURL: wsURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		box: newMailbox(),
	}, nil
}

// socketURL turns a server address into the socket.io websocket endpoint.
func socketURL(raw string, eio int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid rgbd url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid rgbd url %q: unsupported scheme", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid rgbd url %q: missing host", raw)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", fmt.Sprint(eio))
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Name implements Sink.
func (s *RGBD) Name() string { return "rgbd" }

// Connected reports whether a socket.io session is established.
func (s *RGBD) Connected() bool { return s.connected.Load() }

// Emit implements frame.Sink.
func (s *RGBD) Emit(f frame.Frame) {
	s.box.put(f)
}

// Run keeps a session open until ctx is cancelled.
func (s *RGBD) Run(ctx context.Context) error {
	retryCount := 0
	currentBackoff := s.cfg.MinBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		established, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			retryCount = 0
			currentBackoff = s.cfg.MinBackoff
		}

		retryCount++
		ev := log.Debug()
		if retryCount == 1 {
			ev = log.Warn()
		}
		ev.Err(err).
			Str("url", s.wsURL).
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Msg("rgbd disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(currentBackoff):
		}

		nextBackoff := time.Duration(float64(currentBackoff) * s.cfg.Multiplier)
		if nextBackoff > s.cfg.MaxBackoff {
			nextBackoff = s.cfg.MaxBackoff
		}
		currentBackoff = nextBackoff
	}
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// session runs one connection. established reports whether the handshake
// completed, which resets the backoff.
func (s *RGBD) session(ctx context.Context) (established bool, err error) {
	ws, _, err := s.dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return false, err
	}
	c := &conn{ws: ws}
	defer func() {
		s.connected.Store(false)
		ws.Close()
	}()

	open, err := s.handshake(c)
	if err != nil {
		return false, err
	}

	s.connected.Store(true)
	log.Info().Str("url", s.wsURL).Str("sid", open.SID).Int("eio", s.cfg.EngineIO).Msg("Connected to rgbd")

	readErr := make(chan error, 1)
	go func() { readErr <- s.readLoop(c) }()

	// EIO 3 clients ping, EIO 4 servers ping
	var pingC <-chan time.Time
	if s.cfg.EngineIO == 3 && open.PingInterval > 0 {
		ticker := time.NewTicker(time.Duration(open.PingInterval) * time.Millisecond)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			if f, ok := s.box.take(); ok {
				_ = s.writeFrame(c, f)
			}
			_ = c.write(string([]byte{eioMessage, sioDisconnect}))
			return true, nil
		case err := <-readErr:
			return true, err
		case <-pingC:
			if err := c.write(string(eioPing)); err != nil {
				return true, err
			}
		case f := <-s.box.C():
			if err := s.writeFrame(c, f); err != nil {
				return true, err
			}
		}
	}
}

// handshake reads the Engine.IO open packet and joins the default namespace.
func (s *RGBD) handshake(c *conn) (openPacket, error) {
	var open openPacket

	_ = c.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer c.ws.SetReadDeadline(time.Time{})

	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return open, err
	}
	if len(msg) == 0 || msg[0] != eioOpen {
		return open, fmt.Errorf("%w: expected open packet, got %q", ErrHandshake, msg)
	}
	if err := json.Unmarshal(msg[1:], &open); err != nil {
		return open, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	// socket.io 3+ requires an explicit namespace connect
	if s.cfg.EngineIO >= 4 {
		if err := c.write(string([]byte{eioMessage, sioConnect})); err != nil {
			return open, err
		}
	}

	// Wait for the namespace connect acknowledgement
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return open, err
		}
		switch {
		case len(msg) >= 2 && msg[0] == eioMessage && msg[1] == sioConnect:
			return open, nil
		case len(msg) >= 2 && msg[0] == eioMessage && msg[1] == sioConnectError:
			return open, fmt.Errorf("%w: %s", ErrHandshake, msg[2:])
		case len(msg) >= 1 && msg[0] == eioPing:
			if err := c.write(string(eioPong)); err != nil {
				return open, err
			}
		}
	}
}

// readLoop answers pings and watches for the server closing the session.
func (s *RGBD) readLoop(c *conn) error {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case eioPing:
			if err := c.write(string(eioPong) + string(msg[1:])); err != nil {
				return err
			}
		case eioClose:
			return ErrServerClosed
		case eioMessage:
			if len(msg) >= 2 && msg[1] == sioDisconnect {
				return ErrServerClosed
			}
		}
	}
}

func (s *RGBD) writeFrame(c *conn, f frame.Frame) error {
	payload, err := EncodeEvent(frame.EventName, f)
	if err != nil {
		// Not a transport problem, keep the session
		log.Error().Err(err).Msg("Failed to encode frame")
		return nil
	}
	return c.write(payload)
}

// EncodeEvent builds a socket.io EVENT packet: 42["name",data].
func EncodeEvent(name string, data any) (string, error) {
	body, err := json.Marshal([]any{name, data})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(body) + 2)
	b.WriteByte(eioMessage)
	b.WriteByte(sioEvent)
	b.Write(body)
	return b.String(), nil
}
