package wsgate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-room/internal/obslog"
	"github.com/park285/chess-room/internal/room"
	"github.com/park285/chess-room/pkg/roomproto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var (
	ErrUnknownConn  = errors.New("unknown connection")
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

// Handler receives connection lifecycle events and decoded frames. Calls for one
// connection arrive in order from its reader goroutine.
type Handler interface {
	Connect(conn room.ConnID)
	Disconnect(conn room.ConnID)
	Handle(conn room.ConnID, typ string, msg any)
	ProtocolError(conn room.ConnID, err error)
}

// Options tunes the gateway. Zero values take the package defaults.
type Options struct {
	SendBuffer     int
	PingInterval   time.Duration
	PingTimeout    time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Gateway accepts websocket upgrades and fans outbound messages to per-connection
// writer goroutines.
type Gateway struct {
	opts    Options
	log     *zap.Logger
	handler Handler

	mu    sync.RWMutex
	peers map[room.ConnID]*peer
}

// New returns a gateway with no handler bound yet; call Bind before serving.
func New(opts Options) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 2 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 8 << 10
	}
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	return &Gateway{opts: opts, log: opts.Logger, peers: make(map[room.ConnID]*peer)}
}

// Bind sets the handler. Must be called before serving.
func (g *Gateway) Bind(h Handler) { g.handler = h }

// Count returns the number of live connections.
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.peers)
}

// Send enqueues msg for conn without blocking.
func (g *Gateway) Send(conn room.ConnID, msg roomproto.Outbound) error {
	g.mu.RLock()
	p := g.peers[conn]
	g.mu.RUnlock()
	if p == nil {
		return ErrUnknownConn
	}
	raw, err := msg.Marshal()
	if err != nil {
		return err
	}
	select {
	case <-p.stopCh:
		return ErrConnClosed
	default:
	}
	select {
	case p.send <- raw:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.handler == nil {
		http.Error(w, "room not ready", http.StatusServiceUnavailable)
		return
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.opts.AllowedOrigins,
		InsecureSkipVerify: len(g.opts.AllowedOrigins) == 0,
		CompressionMode:    websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		g.log.Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c.SetReadLimit(g.opts.ReadLimit)

	p := &peer{
		id:     room.ConnID(uuid.NewString()),
		conn:   c,
		send:   make(chan []byte, g.opts.SendBuffer),
		stopCh: make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.mu.Lock()
	g.peers[p.id] = p
	g.mu.Unlock()
	g.log.Info("ws_open", zap.String("conn_id", string(p.id)), zap.String("remote", r.RemoteAddr))

	g.handler.Connect(p.id)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); g.writeLoop(ctx, p) }()
	go func() { defer wg.Done(); g.pingLoop(ctx, p) }()

	reason := g.readLoop(ctx, p)

	p.stop()
	cancel()
	g.handler.Disconnect(p.id)
	g.mu.Lock()
	delete(g.peers, p.id)
	g.mu.Unlock()
	_ = c.Close(websocket.StatusNormalClosure, "")
	wg.Wait()
	g.log.Info("ws_close", zap.String("conn_id", string(p.id)), zap.String("reason", reason))
}

func (g *Gateway) readLoop(ctx context.Context, p *peer) string {
	for {
		typ, data, err := p.conn.Read(ctx)
		if err != nil {
			if p.isStopping() {
				return "stopped"
			}
			if s := websocket.CloseStatus(err); s != -1 {
				return s.String()
			}
			return err.Error()
		}
		if typ != websocket.MessageText {
			g.handler.ProtocolError(p.id, roomproto.ErrBadPayload)
			continue
		}
		kind, msg, err := roomproto.Decode(data)
		if err != nil {
			g.handler.ProtocolError(p.id, err)
			continue
		}
		g.handler.Handle(p.id, kind, msg)
	}
}

func (g *Gateway) writeLoop(ctx context.Context, p *peer) {
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case raw := <-p.send:
			wctx, cancel := context.WithTimeout(ctx, g.opts.WriteTimeout)
			err := p.conn.Write(wctx, websocket.MessageText, raw)
			cancel()
			if err != nil {
				g.log.Debug("ws_write_error", zap.String("conn_id", string(p.id)), zap.Error(err))
				p.stop()
				_ = p.conn.Close(websocket.StatusGoingAway, "write failure")
				return
			}
		}
	}
}

// pingLoop drops a connection whose pong does not arrive within PingTimeout.
func (g *Gateway) pingLoop(ctx context.Context, p *peer) {
	t := time.NewTicker(g.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, g.opts.PingTimeout)
			err := p.conn.Ping(pctx)
			cancel()
			if err != nil {
				if p.isStopping() {
					return
				}
				g.log.Info("ws_ping_timeout", zap.String("conn_id", string(p.id)), zap.Error(err))
				p.stop()
				_ = p.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

// Shutdown closes every live connection. Each reader then runs its disconnect path.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.RLock()
	peers := make([]*peer, 0, len(g.peers))
	for _, p := range g.peers {
		peers = append(peers, p)
	}
	g.mu.RUnlock()
	for _, p := range peers {
		_ = p.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for g.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

type peer struct {
	id   room.ConnID
	conn *websocket.Conn
	send chan []byte

	stopCh   chan struct{}
	stopOnce sync.Once
}

func (p *peer) stop() { p.stopOnce.Do(func() { close(p.stopCh) }) }

func (p *peer) isStopping() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}
