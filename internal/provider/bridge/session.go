package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxFrame   = 64 * 1024
)

var (
	errSessionClosed   = errors.New("bridge session closed")
	errSessionReplaced = errors.New("bridge session replaced by a newer one")
)

type reply struct {
	accounts []string
	err      *ProviderError
}

// session is one connected page.
type session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	id        string
	providers map[domain.Chain]bool
	pending   map[uint64]chan reply
	closeErr  error
	done      chan struct{}
}

func newSession(conn *websocket.Conn) *session {
	return &session{
		conn:      conn,
		providers: make(map[domain.Chain]bool),
		pending:   make(map[uint64]chan reply),
		done:      make(chan struct{}),
	}
}

// hello records the page-chosen id and its providers.
func (s *session) hello(id string, p map[domain.Chain]bool) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()

	s.setProviders(p)
}

func (s *session) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.id
}

func (s *session) setProviders(p map[domain.Chain]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.providers = make(map[domain.Chain]bool, len(p))
	for chain, present := range p {
		if chain.IsValid() {
			s.providers[chain] = present
		}
	}
}

func (s *session) hasProvider(chain domain.Chain) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeErr == nil && s.providers[chain]
}

// call sends a request and waits for the matching response.
func (s *session) call(ctx context.Context, id uint64, chain domain.Chain, method string) (reply, error) {
	ch := make(chan reply, 1)

	s.mu.Lock()
	if s.closeErr != nil {
		err := s.closeErr
		s.mu.Unlock()
		return reply{}, err
	}
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(Request{Type: TypeRequest, ID: id, Chain: chain, Method: method}); err != nil {
		return reply{}, errors.Wrap(err, "send bridge request")
	}

	select {
	case r := <-ch:
		return r, nil
	case <-s.done:
		return reply{}, s.err()
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (s *session) deliver(id uint64, r reply) bool {
	s.mu.Lock()
	ch, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case ch <- r:
	default:
	}
	return true
}

func (s *session) write(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// close fails every pending call with cause. Only the first cause is kept.
func (s *session) close(cause error) {
	s.mu.Lock()
	if s.closeErr != nil {
		s.mu.Unlock()
		return
	}
	s.closeErr = cause
	close(s.done)
	s.mu.Unlock()

	_ = s.conn.Close()
}

func (s *session) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}
