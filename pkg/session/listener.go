package session

import (
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lishubing/sqlgate/pkg/wire"
)

// ListenerState is a listener's lifecycle, per spec section 3:
// start -> listening -> stopped.
type ListenerState int

const (
	ListenerStopped ListenerState = iota
	ListenerStarting
	ListenerListening
)

// Listener binds one network endpoint (or unix socket) to a Service,
// per spec section 3's Listener data model entry.
type Listener struct {
	Name        string
	Address     string // host:port, or a filesystem path for a unix socket
	TLSConfig   *tls.Config
	Service     *Service
	NewRouter   func() RouterSession
	Filters     []Filter
	Handshake   HandshakeParams

	log *zap.Logger

	mu       sync.Mutex
	state    ListenerState
	listener net.Listener
	nextID   uint32
	stopCh   chan struct{}
}

// NewListener creates a listener bound to svc, not yet accepting
// connections. handshake configures the greeting/auth exchange every
// accepted connection runs before it reaches a worker; a zero-value
// HandshakeParams still sends a valid greeting but accepts any
// credentials, since Cache is nil.
func NewListener(name, address string, svc *Service, newRouter func() RouterSession, filters []Filter, handshake HandshakeParams, log *zap.Logger) *Listener {
	return &Listener{
		Name:      name,
		Address:   address,
		Service:   svc,
		NewRouter: newRouter,
		Filters:   filters,
		Handshake: handshake,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// Start begins accepting connections. accept is called once per accepted
// connection, on its own goroutine, with the freshly constructed
// ClientSession; it owns the session's lifecycle from there on (normally
// a Worker.Run call).
func (l *Listener) Start(accept func(*ClientSession)) error {
	l.mu.Lock()
	if l.state != ListenerStopped {
		l.mu.Unlock()
		return nil
	}
	l.state = ListenerStarting
	l.mu.Unlock()

	network := "tcp"
	if isUnixSocketPath(l.Address) {
		network = "unix"
	}
	var ln net.Listener
	var err error
	if l.TLSConfig != nil {
		ln, err = tls.Listen(network, l.Address, l.TLSConfig)
	} else {
		ln, err = net.Listen(network, l.Address)
	}
	if err != nil {
		l.mu.Lock()
		l.state = ListenerStopped
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	l.listener = ln
	l.state = ListenerListening
	l.mu.Unlock()

	go l.acceptLoop(accept)
	return nil
}

func (l *Listener) acceptLoop(accept func(*ClientSession)) {
	for {
		raw, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.stopCh:
				return
			default:
				l.log.Warn("accept failed", zap.String("listener", l.Name), zap.Error(err))
				continue
			}
		}
		id := atomic.AddUint32(&l.nextID, 1)
		conn := wire.NewConn(raw)
		if _, _, err := runHandshake(conn, id, l.Handshake); err != nil {
			l.log.Warn("handshake failed", zap.String("listener", l.Name), zap.Error(err))
			conn.Close()
			continue
		}
		router := l.NewRouter()
		cs := New(id, conn, router, l.Filters, l.Service.Params.RetainLastStmts)
		cs.ServiceName = l.Service.Name
		l.Service.NewSession(cs)
		accept(cs)
	}
}

// Stop stops accepting new connections; sessions already accepted are
// unaffected.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != ListenerListening {
		return nil
	}
	close(l.stopCh)
	l.state = ListenerStopped
	return l.listener.Close()
}

func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func isUnixSocketPath(addr string) bool {
	return len(addr) > 0 && addr[0] == '/'
}
