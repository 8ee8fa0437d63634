// Package bridge relays provider calls to the browser over a WebSocket.
// A page shim answers requests with the injected window.solana and
// window.ethereum objects; only the newest page session is used.
package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/provider"
)

const defaultRequestTimeout = 60 * time.Second

// ErrTimeout the page did not answer in time.
var ErrTimeout = errors.New("bridge request timed out")

// Hub accepts page sessions and exposes one ChainProvider per chain.
type Hub struct {
	upgrader websocket.Upgrader
	timeout  time.Duration
	nextID   atomic.Uint64
	l        *zap.Logger

	mu      sync.RWMutex
	current *session
}

// NewHub creates a hub. checkOrigin nil accepts any origin.
func NewHub(timeout time.Duration, checkOrigin func(r *http.Request) bool, l *zap.Logger) *Hub {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		timeout: timeout,
		l:       l,
	}
}

// Provider returns the bridged provider for chain.
func (h *Hub) Provider(chain domain.Chain) *ChainProvider {
	return &ChainProvider{hub: h, chain: chain}
}

// Connected reports whether a page session is attached.
func (h *Hub) Connected() bool {
	return h.session() != nil
}

// ServeHTTP upgrades the request and serves the session until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn("Bridge upgrade failed", zap.Error(err))
		return
	}

	s := newSession(conn)
	go h.keepAlive(s)
	h.readLoop(s)
}

// Close drops the current session.
func (h *Hub) Close() {
	h.mu.Lock()
	s := h.current
	h.current = nil
	h.mu.Unlock()

	if s != nil {
		s.close(errSessionClosed)
	}
}

func (h *Hub) readLoop(s *session) {
	defer func() {
		s.close(errSessionClosed)
		h.detach(s)
	}()

	s.conn.SetReadLimit(maxFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Warn("Bridge session closed unexpectedly", zap.String("session", s.sessionID()), zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Inbound
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.l.Debug("Malformed bridge frame", zap.Error(err))
			continue
		}
		h.handle(s, msg)
	}
}

func (h *Hub) handle(s *session, msg Inbound) {
	switch msg.Type {
	case TypeHello:
		s.hello(msg.Session, msg.Providers)
		h.attach(s)
	case TypeProviders:
		s.setProviders(msg.Providers)
		h.l.Debug("Bridge providers updated", zap.String("session", s.sessionID()), zap.Any("providers", msg.Providers))
	case TypeResponse:
		if !s.deliver(msg.ID, reply{accounts: msg.Accounts, err: msg.Error}) {
			h.l.Debug("Bridge response without pending request", zap.Uint64("id", msg.ID))
		}
	default:
		h.l.Debug("Unknown bridge frame", zap.String("type", msg.Type))
	}
}

func (h *Hub) attach(s *session) {
	h.mu.Lock()
	old := h.current
	h.current = s
	h.mu.Unlock()

	if old != nil && old != s {
		old.close(errSessionReplaced)
		h.l.Info("Bridge session replaced", zap.String("old", old.sessionID()), zap.String("new", s.sessionID()))
		return
	}
	h.l.Info("Bridge session attached", zap.String("session", s.sessionID()))
}

func (h *Hub) detach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current == s {
		h.current = nil
		h.l.Info("Bridge session detached", zap.String("session", s.sessionID()))
	}
}

func (h *Hub) session() *session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *Hub) keepAlive(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				s.close(errSessionClosed)
				return
			}
		}
	}
}

func (h *Hub) call(ctx context.Context, chain domain.Chain, method string) ([]string, error) {
	s := h.session()
	if s == nil || !s.hasProvider(chain) {
		return nil, errors.Wrapf(domain.ErrProviderAbsent, "%s wallet", chain.WalletName())
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	r, err := s.call(ctx, h.nextID.Add(1), chain, method)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "%s %s", chain, method)
		}
		return nil, err
	}
	if r.err != nil {
		if r.err.Code == CodeUserRejected {
			return nil, errors.Wrap(domain.ErrProviderRejected, r.err.Error())
		}
		return nil, errors.Wrapf(r.err, "%s %s (code %d)", chain, method, r.err.Code)
	}

	return r.accounts, nil
}

// ChainProvider is the bridged provider of one chain.
type ChainProvider struct {
	hub   *Hub
	chain domain.Chain
}

var _ provider.ChainProvider = (*ChainProvider)(nil)

func (p *ChainProvider) Chain() domain.Chain { return p.chain }

// IsPresent reports whether the current page exposes the chain's wallet.
func (p *ChainProvider) IsPresent() bool {
	s := p.hub.session()
	return s != nil && s.hasProvider(p.chain)
}

func (p *ChainProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	return p.hub.call(ctx, p.chain, MethodRequestAccounts)
}

func (p *ChainProvider) Accounts(ctx context.Context) ([]string, error) {
	return p.hub.call(ctx, p.chain, MethodGetAccounts)
}

func (p *ChainProvider) Disconnect(ctx context.Context) error {
	_, err := p.hub.call(ctx, p.chain, MethodDisconnect)
	return err
}
