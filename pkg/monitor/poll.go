package monitor

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// PollConfig mirrors spec section 4.G's per-monitor tunables that govern
// the tight poll loop itself (failover/switchover/rejoin tunables live in
// their own Config types).
type PollConfig struct {
	Interval       time.Duration
	ConnectTimeout time.Duration
	IgnoreExternalMasters bool
}

// SQLExecutor is the Executor backing the monitor's own admin queries,
// one database/sql connection per monitored server, refreshed when
// stale — spec section 1's "MariaDB client library used only as an
// outbound connection driver" boundary, concretely met with
// go-sql-driver/mysql.
type SQLExecutor struct {
	mu    sync.Mutex
	dsn   func(*Server) string
	conns map[string]*sql.DB
	log   *zap.Logger
}

// NewSQLExecutor returns an Executor whose DSN for each server is built
// by dsn.
func NewSQLExecutor(dsn func(*Server) string, log *zap.Logger) *SQLExecutor {
	return &SQLExecutor{dsn: dsn, conns: make(map[string]*sql.DB), log: log}
}

func (e *SQLExecutor) conn(s *Server) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if db, ok := e.conns[s.Name]; ok {
		if db.Ping() == nil {
			return db, nil
		}
		db.Close()
		delete(e.conns, s.Name)
	}
	db, err := sql.Open("mysql", e.dsn(s))
	if err != nil {
		return nil, err
	}
	e.conns[s.Name] = db
	return db, nil
}

func (e *SQLExecutor) Exec(s *Server, query string) error {
	db, err := e.conn(s)
	if err != nil {
		return err
	}
	_, err = db.Exec(query)
	return err
}

func (e *SQLExecutor) GTIDPosition(s *Server) (string, error) {
	db, err := e.conn(s)
	if err != nil {
		return "", err
	}
	var gtid string
	err = db.QueryRow("SELECT @@gtid_current_pos").Scan(&gtid)
	return gtid, err
}

// SlaveIODisconnectedFor reports how long s's IO thread has been
// disconnected from its master, read off Seconds_Behind_Master /
// Slave_IO_Running in SHOW SLAVE STATUS. The column layout differs
// between MySQL and MariaDB (and across versions), so the scan lives in
// snapshotSlaveIODowntime.
func (e *SQLExecutor) SlaveIODisconnectedFor(s *Server) (time.Duration, bool) {
	db, err := e.conn(s)
	if err != nil {
		return 0, false
	}
	return snapshotSlaveIODowntime(db)
}

// Monitor owns one named set of monitored servers and runs the poll loop
// of spec section 4.G, grounded on the teacher-pack's
// percona-pxc_scheduler_handler poll-loop shape (pxcScheduler.go's
// per-tick cluster view fetch).
type Monitor struct {
	Name    string
	Config  PollConfig
	Servers []*Server
	Exec    Executor

	pool *ants.Pool
	log  *zap.Logger

	Topology *Topology
	Failover FailoverState
	Mailbox  *Mailbox

	previousMaster string
	lastOperation  time.Time
}

// NewMonitor creates a monitor over servers, with a bounded worker pool
// for per-tick polling fan-out, grounded on pkg/backend.Pool's use of the
// same library for replay fan-out.
func NewMonitor(name string, cfg PollConfig, servers []*Server, exec Executor, poolSize int, log *zap.Logger) (*Monitor, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		Name:    name,
		Config:  cfg,
		Servers: servers,
		Exec:    exec,
		pool:    pool,
		log:     log,
		Mailbox: NewMailbox(log),
	}, nil
}

// Tick runs one full poll cycle: fetch each server's view, rebuild the
// topology, and re-run election. It does not perform failover/switchover/
// rejoin itself — those are driven by the caller (cmd/sqlgated's
// supervisory loop) using this tick's Topology and the FailoverState
// counter Tick updates.
func (m *Monitor) Tick(now time.Time) {
	m.Mailbox.Poll()

	var wg sync.WaitGroup
	for _, s := range m.Servers {
		s := s
		wg.Add(1)
		_ = m.pool.Submit(func() {
			defer wg.Done()
			m.pollOne(s, now)
		})
	}
	wg.Wait()

	m.Topology = BuildTopology(m.Servers)

	elected, ok := Elect(m.Servers, m.Topology, m.previousMaster)
	if ok {
		ApplyElection(m.Servers, elected)
		m.previousMaster = elected.Name
	}

	masterReachable := ok && elected.Reachable()
	m.Failover.Observe(masterReachable, FailoverConfig{FailCount: 1})
}

func (m *Monitor) pollOne(s *Server, now time.Time) {
	if err := m.Exec.Exec(s, "SELECT @@server_id"); err != nil {
		s.MarkUnreachable()
		m.log.Warn("monitor poll failed", zap.String("monitor", m.Name), zap.String("server", s.Name), zap.Error(err))
		return
	}
	s.MarkReachable(now)

	if gtid, err := m.Exec.GTIDPosition(s); err == nil {
		s.GTIDPosition = gtid
	}
}
