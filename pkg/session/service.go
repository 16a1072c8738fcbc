package session

import (
	"fmt"
	"sync"
	"time"
)

// ServiceParams are the runtime parameters spec section 3 lists on a
// Service: user/password for backend connections, version string,
// timeouts, connection limits, retained-statement depth, and the
// backoff ceiling between retries.
type ServiceParams struct {
	User               string
	Password           string
	VersionString      string
	ConnectTimeout     time.Duration
	MaxConnections     int
	RetainLastStmts    int
	MaxRetryInterval   time.Duration
}

// Service is component F's Service: a router module instance, an ordered
// filter chain, and either an explicit server set or a single monitor
// whose members are the targets — never both, per spec section 3's
// invariant.
type Service struct {
	mu sync.Mutex

	Name       string
	RouterName string
	Params     ServiceParams

	filters []Filter

	explicitServers []string
	monitorName     string

	sessions map[uint32]*ClientSession
	nextID   uint32
}

// NewService creates a service bound to exactly one of servers or
// monitorName; callers must pass exactly one non-empty.
func NewService(name, routerName string, params ServiceParams, filters []Filter, servers []string, monitorName string) (*Service, error) {
	if len(servers) > 0 && monitorName != "" {
		return nil, fmt.Errorf("service %s: cannot set both explicit servers and a monitor", name)
	}
	if len(servers) == 0 && monitorName == "" {
		return nil, fmt.Errorf("service %s: must set either explicit servers or a monitor", name)
	}
	return &Service{
		Name:            name,
		RouterName:      routerName,
		Params:          params,
		filters:         filters,
		explicitServers: servers,
		monitorName:     monitorName,
		sessions:        make(map[uint32]*ClientSession),
	}, nil
}

// Capabilities is the per-service bitset of spec section 4.F: the union
// of the router's capabilities and every filter's.
func (svc *Service) Capabilities(router RouterSession) Capability {
	providers := make([]CapabilityProvider, 0, len(svc.filters)+1)
	providers = append(providers, router)
	for _, f := range svc.filters {
		providers = append(providers, f)
	}
	return UnionCapabilities(providers...)
}

// NewSession registers a freshly-accepted client session against the
// service, assigning it the service's filter chain.
func (svc *Service) NewSession(cs *ClientSession) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sessions[cs.ID] = cs
}

// CloseSession removes a session from the service's tracked set; called
// once the session has fully closed.
func (svc *Service) CloseSession(id uint32) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.sessions, id)
}

// SessionCount reports how many sessions the service currently owns,
// used by runtime-config destroy validation (spec section 3: "Destruction
// requires: no listeners, no active sessions, filter chain emptied").
func (svc *Service) SessionCount() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.sessions)
}

// UsesMonitor reports whether this service derives its server set from a
// monitor rather than an explicit list, and the monitor's name.
func (svc *Service) UsesMonitor() (string, bool) {
	return svc.monitorName, svc.monitorName != ""
}

// ExplicitServers returns the service's explicit server-name list, empty
// when the service derives its members from a monitor instead.
func (svc *Service) ExplicitServers() []string {
	return svc.explicitServers
}
