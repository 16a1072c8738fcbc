package main

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/lishubing/sqlgate/pkg/authcache"
	"github.com/lishubing/sqlgate/pkg/classify"
	classifysql "github.com/lishubing/sqlgate/pkg/classify/sql"
	"github.com/lishubing/sqlgate/pkg/configplane"
	"github.com/lishubing/sqlgate/pkg/monitor"
	"github.com/lishubing/sqlgate/pkg/router/rwsplit"
	"github.com/lishubing/sqlgate/pkg/router/shard"
	"github.com/lishubing/sqlgate/pkg/session"
	"github.com/lishubing/sqlgate/pkg/wire"
)

// serverEntry is the live form of a configplane server object: enough to
// dial it, either for routing traffic or for monitor polling.
type serverEntry struct {
	Address  string
	Rank     int
	Excluded bool
}

// Runtime owns every live object the configplane Appliers materialize
// against, per spec section 4.H step 4's "applies the change atomically
// against the live object graph" — the graph itself lives here rather
// than inside pkg/configplane, which only knows about validated records.
type Runtime struct {
	log *zap.Logger

	mu              sync.Mutex
	servers         map[string]serverEntry
	monitors        map[string]*monitor.Monitor
	monitorStop     map[string]chan struct{}
	shardMaps       map[string]*shard.Map
	shardStop       map[string]chan struct{}
	routerFactories map[string]func() session.RouterSession

	sessionServer *session.Server
	cache         *authcache.Cache
}

func newRuntime(log *zap.Logger, sessionServer *session.Server, cache *authcache.Cache) *Runtime {
	return &Runtime{
		log:             log,
		servers:         make(map[string]serverEntry),
		monitors:        make(map[string]*monitor.Monitor),
		monitorStop:     make(map[string]chan struct{}),
		shardMaps:       make(map[string]*shard.Map),
		shardStop:       make(map[string]chan struct{}),
		routerFactories: make(map[string]func() session.RouterSession),
		sessionServer:   sessionServer,
		cache:           cache,
	}
}

// stopAll shuts down every background goroutine the Appliers started —
// monitor poll tickers and shard refresh schedulers — as part of the
// daemon's graceful shutdown sequence.
func (rt *Runtime) stopAll() {
	rt.mu.Lock()
	stops := make([]chan struct{}, 0, len(rt.monitorStop)+len(rt.shardStop))
	for _, stop := range rt.monitorStop {
		stops = append(stops, stop)
	}
	for _, stop := range rt.shardStop {
		stops = append(stops, stop)
	}
	rt.mu.Unlock()
	for _, stop := range stops {
		close(stop)
	}
}

// --- servers ---

type serverApplier struct{ rt *Runtime }

func (a *serverApplier) Create(obj *configplane.Object) error {
	entry, err := decodeServerParams(obj.Attributes.Parameters)
	if err != nil {
		return err
	}
	a.rt.mu.Lock()
	a.rt.servers[obj.Name] = entry
	a.rt.mu.Unlock()
	return nil
}

func (a *serverApplier) Alter(obj *configplane.Object, changed map[string]interface{}) error {
	entry, err := decodeServerParams(obj.Attributes.Parameters)
	if err != nil {
		return err
	}
	a.rt.mu.Lock()
	a.rt.servers[obj.Name] = entry
	for _, m := range a.rt.monitors {
		for _, s := range m.Servers {
			if s.Name == obj.Name {
				s.Rank = entry.Rank
				s.Excluded = entry.Excluded
			}
		}
	}
	a.rt.mu.Unlock()
	return nil
}

func (a *serverApplier) Destroy(objType configplane.ObjectType, name string) error {
	a.rt.mu.Lock()
	defer a.rt.mu.Unlock()
	delete(a.rt.servers, name)
	for _, m := range a.rt.monitors {
		for _, s := range m.Servers {
			if s.Name == name {
				s.Excluded = true // cannot safely shrink a running Monitor's slice
			}
		}
	}
	return nil
}

func decodeServerParams(params map[string]interface{}) (serverEntry, error) {
	addr, _ := params["address"].(string)
	if addr == "" {
		return serverEntry{}, fmt.Errorf("server: parameters.address is required")
	}
	entry := serverEntry{Address: addr}
	if r, ok := params["rank"]; ok {
		entry.Rank = toInt(r)
	}
	if e, ok := params["excluded"].(bool); ok {
		entry.Excluded = e
	}
	return entry, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		var out int
		fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}

// --- monitors ---

type monitorApplier struct{ rt *Runtime }

func (a *monitorApplier) Create(obj *configplane.Object) error {
	rt := a.rt
	rt.mu.Lock()
	var servers []*monitor.Server
	for _, ref := range obj.Relationships["servers"].Data {
		entry, ok := rt.servers[ref.ID]
		if !ok {
			rt.mu.Unlock()
			return fmt.Errorf("monitor %s: unknown server %s", obj.Name, ref.ID)
		}
		servers = append(servers, &monitor.Server{Name: ref.ID, Address: entry.Address, Rank: entry.Rank, Excluded: entry.Excluded})
	}
	rt.mu.Unlock()

	user, _ := obj.Attributes.Parameters["user"].(string)
	password, _ := obj.Attributes.Parameters["password"].(string)
	interval := 2 * time.Second
	if iv, ok := obj.Attributes.Parameters["poll_interval_ms"]; ok {
		interval = time.Duration(toInt(iv)) * time.Millisecond
	}

	dsn := func(s *monitor.Server) string {
		return fmt.Sprintf("%s:%s@tcp(%s)/", user, password, s.Address)
	}
	exec := monitor.NewSQLExecutor(dsn, rt.log)
	m, err := monitor.NewMonitor(obj.Name, monitor.PollConfig{Interval: interval}, servers, exec, 8, rt.log)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	rt.mu.Lock()
	rt.monitors[obj.Name] = m
	rt.monitorStop[obj.Name] = stop
	rt.mu.Unlock()

	go runMonitorTicker(m, interval, stop)
	return nil
}

func runMonitorTicker(m *monitor.Monitor, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}

func (a *monitorApplier) Alter(obj *configplane.Object, changed map[string]interface{}) error {
	a.rt.log.Info("monitor parameters changed; poll loop keeps its original interval until restart", zap.String("monitor", obj.Name))
	return nil
}

func (a *monitorApplier) Destroy(objType configplane.ObjectType, name string) error {
	a.rt.mu.Lock()
	stop, ok := a.rt.monitorStop[name]
	delete(a.rt.monitors, name)
	delete(a.rt.monitorStop, name)
	a.rt.mu.Unlock()
	if ok {
		close(stop)
	}
	return nil
}

// --- services ---

type serviceApplier struct{ rt *Runtime }

func (a *serviceApplier) Create(obj *configplane.Object) error {
	rt := a.rt
	params := obj.Attributes.Parameters
	user, _ := params["user"].(string)
	password, _ := params["password"].(string)
	retain := 4
	if r, ok := params["retain_last_statements"]; ok {
		retain = toInt(r)
	}

	var explicitServers []string
	for _, ref := range obj.Relationships["servers"].Data {
		explicitServers = append(explicitServers, ref.ID)
	}
	monitorName := ""
	if refs := obj.Relationships["monitors"].Data; len(refs) > 0 {
		monitorName = refs[0].ID
	}

	var newRouter func() session.RouterSession
	switch obj.Attributes.Router {
	case "rwsplit":
		newRouter = a.rwsplitFactory(obj.Name, monitorName, explicitServers)
	case "shard":
		var err error
		newRouter, err = a.shardFactory(obj.Name, explicitServers, user, password)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("service %s: unknown router %q", obj.Name, obj.Attributes.Router)
	}

	svc, err := session.NewService(obj.Name, obj.Attributes.Router, session.ServiceParams{
		User:            user,
		Password:        password,
		RetainLastStmts: retain,
	}, nil, explicitServers, monitorName)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	rt.routerFactories[obj.Name] = newRouter
	rt.mu.Unlock()
	rt.sessionServer.AddService(svc)
	return nil
}

func (a *serviceApplier) rwsplitFactory(svcName, monitorName string, explicitServers []string) func() session.RouterSession {
	rt := a.rt
	master := func() string {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if m, ok := rt.monitors[monitorName]; ok {
			if name, ok := m.CurrentMaster(); ok {
				return name
			}
			return ""
		}
		if len(explicitServers) > 0 {
			return explicitServers[0]
		}
		return ""
	}
	slaves := func() []string {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if m, ok := rt.monitors[monitorName]; ok {
			return m.SlaveNames()
		}
		if len(explicitServers) > 1 {
			return explicitServers[1:]
		}
		return nil
	}
	return func() session.RouterSession {
		return &session.RWSplitAdapter{
			Classifier: classify.NewCachingClassifier(classifysql.New(), 256),
			Slaves:     slaves,
			Master:     master,
			Trx:        rwsplit.TrxInactive,
			Replay: rwsplit.ReplayConfig{
				TrxMaxAttempts: 3,
				TrxMaxSize:     1 << 20,
			},
			CausalMode: rwsplit.CausalReadsOff,
			Optimistic: rwsplit.NewOptimisticTrxState(false),
		}
	}
}

func (a *serviceApplier) shardFactory(svcName string, explicitServers []string, user, password string) (func() session.RouterSession, error) {
	rt := a.rt
	rt.mu.Lock()
	m, ok := rt.shardMaps[svcName]
	if !ok {
		m = shard.NewMap(5*time.Minute, shard.DuplicateLogAndSkip)
		rt.shardMaps[svcName] = m
		stop := make(chan struct{})
		rt.shardStop[svcName] = stop
		fetcher := &sqlDatabaseFetcher{user: user, password: password}
		sched := shard.NewScheduler(m, fetcher, func() []string { return explicitServers }, rt.log)
		go func() {
			if err := sched.Start("@every 5m"); err != nil {
				rt.log.Warn("shard scheduler failed to start", zap.String("service", svcName), zap.Error(err))
				return
			}
			<-stop
			sched.Stop()
		}()
	}
	rt.mu.Unlock()
	return func() session.RouterSession {
		return &session.ShardAdapter{
			Map:        m,
			Classifier: classify.NewCachingClassifier(classifysql.New(), 256),
		}
	}, nil
}

func (a *serviceApplier) Alter(obj *configplane.Object, changed map[string]interface{}) error {
	return nil
}

func (a *serviceApplier) Destroy(objType configplane.ObjectType, name string) error {
	a.rt.mu.Lock()
	if stop, ok := a.rt.shardStop[name]; ok {
		close(stop)
		delete(a.rt.shardStop, name)
		delete(a.rt.shardMaps, name)
	}
	delete(a.rt.routerFactories, name)
	a.rt.mu.Unlock()
	return nil
}

// sqlDatabaseFetcher implements shard.Fetcher against a real backend via
// database/sql, the same outbound-admin-connection boundary
// pkg/monitor.SQLExecutor uses, since SHOW DATABASES needs no
// session-command replay semantics.
type sqlDatabaseFetcher struct {
	user     string
	password string
}

func (f *sqlDatabaseFetcher) Databases(server string) ([]string, error) {
	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s)/", f.user, f.password, server))
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.Query("SHOW DATABASES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// --- listeners ---

type listenerApplier struct{ rt *Runtime }

func (a *listenerApplier) Create(obj *configplane.Object) error {
	addr, _ := obj.Attributes.Parameters["address"].(string)
	if addr == "" {
		return fmt.Errorf("listener %s: parameters.address is required", obj.Name)
	}
	refs := obj.Relationships["services"].Data
	if len(refs) == 0 {
		return fmt.Errorf("listener %s: requires a services relationship", obj.Name)
	}
	svcName := refs[0].ID
	svc, ok := a.rt.sessionServer.Service(svcName)
	if !ok {
		return fmt.Errorf("listener %s: unknown service %s", obj.Name, svcName)
	}
	a.rt.mu.Lock()
	newRouter, ok := a.rt.routerFactories[svcName]
	a.rt.mu.Unlock()
	if !ok {
		return fmt.Errorf("listener %s: service %s has no router factory", obj.Name, svcName)
	}
	handshake := session.HandshakeParams{
		ServerVersion: "5.7.34-sqlgate",
		Capabilities:  wire.DefaultServerCapabilities,
		Cache:         a.rt.cache,
	}
	l := session.NewListener(obj.Name, addr, svc, newRouter, nil, handshake, a.rt.log)
	a.rt.sessionServer.AddListener(l)
	return nil
}

func (a *listenerApplier) Alter(obj *configplane.Object, changed map[string]interface{}) error {
	return fmt.Errorf("listener %s: parameters are immutable once bound", obj.Name)
}

func (a *listenerApplier) Destroy(objType configplane.ObjectType, name string) error {
	return nil
}
