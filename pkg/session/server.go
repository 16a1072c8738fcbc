package session

import (
	"sync"

	"go.uber.org/zap"
)

// Server is the top-level process object of spec section 3/4.F: it owns
// every listener, service, and worker pool, and is what cmd/sqlgated
// constructs and starts.
type Server struct {
	mu sync.Mutex

	log       *zap.Logger
	Stats     *Stats
	listeners map[string]*Listener
	services  map[string]*Service
	workers   []*Worker
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewServer creates a server with numWorkers worker goroutines, not yet
// started.
func NewServer(log *zap.Logger, numWorkers int, inboxDepth int, dispatch func(cs *ClientSession, query []byte)) *Server {
	s := &Server{
		log:       log,
		Stats:     NewStats(),
		listeners: make(map[string]*Listener),
		services:  make(map[string]*Service),
		stop:      make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		s.workers = append(s.workers, NewWorker(i, inboxDepth, dispatch, log))
	}
	return s
}

// AddService registers a service, making it eligible to be bound by a
// listener.
func (s *Server) AddService(svc *Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.Name] = svc
}

// Service looks up a registered service by name.
func (s *Server) Service(name string) (*Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[name]
	return svc, ok
}

// Start launches every worker's Run loop and every registered listener.
func (s *Server) Start() error {
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *Worker) {
			defer s.wg.Done()
			w.Run(s.stop)
		}(w)
	}
	s.mu.Lock()
	listeners := make([]*Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		if err := l.Start(s.acceptSession); err != nil {
			return err
		}
	}
	return nil
}

// AddListener registers a listener; it begins accepting once Start runs
// (or immediately, via Listener.Start, if added after Start).
func (s *Server) AddListener(l *Listener) {
	s.mu.Lock()
	s.listeners[l.Name] = l
	s.mu.Unlock()
}

func (s *Server) acceptSession(cs *ClientSession) {
	s.Stats.RecordAccepted()
	w := s.pickWorker(cs.ID)
	w.Assign(cs)
}

// pickWorker assigns a session to a worker by a simple modulo of its id,
// matching the teacher's round-robin-by-connection-id tunnel placement.
func (s *Server) pickWorker(sessionID uint32) *Worker {
	return s.workers[int(sessionID)%len(s.workers)]
}

// Stop signals every worker to exit and stops every listener from
// accepting new connections, then waits for worker goroutines to drain.
func (s *Server) Stop() {
	s.mu.Lock()
	listeners := make([]*Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		_ = l.Stop()
	}
	close(s.stop)
	s.wg.Wait()
}
