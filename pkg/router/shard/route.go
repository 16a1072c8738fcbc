package shard

import (
	"time"

	"github.com/lishubing/sqlgate/pkg/wireerr"
)

// Action is what the router decided to do with one statement.
type Action int

const (
	ActionRouteToServer Action = iota
	ActionBroadcastUnion
	ActionBroadcastAll // session commands: ALL, no reply merging needed beyond ack bookkeeping
	ActionError
)

// Decision is the routing outcome for one statement.
type Decision struct {
	Action Action
	Server string    // valid when Action == ActionRouteToServer
	Err    *wireerr.Error
}

// SessionState is the per-client-session state shard routing needs: the
// database USE last selected, if any.
type SessionState struct {
	CurrentDB string
}

// RouteUse handles a USE <db> statement: it must be forwarded to the
// mapped backend only, and the session's CurrentDB remembered so later
// unqualified statements route there.
func RouteUse(m *Map, state *SessionState, db string, now time.Time) Decision {
	server, found, _ := m.Lookup(db, now)
	if !found {
		return Decision{Action: ActionError, Err: wireerr.New(wireerr.RoutingPolicy, 1049, "42000", "shard", "Unknown database '"+db+"'")}
	}
	state.CurrentDB = db
	return Decision{Action: ActionRouteToServer, Server: server}
}

// RouteQualified routes a statement that references one or more
// `<db>.<table>` names. Per spec section 4.E, multiple distinct databases
// in one statement is an error; zero or one resolves to that database's
// (or, if none, the session's current database's) backend.
func RouteQualified(m *Map, state *SessionState, referencedDBs []string, now time.Time) Decision {
	db := ""
	for _, d := range referencedDBs {
		if d == "" {
			continue
		}
		if db == "" {
			db = d
			continue
		}
		if d != db {
			return Decision{Action: ActionError, Err: wireerr.New(wireerr.RoutingPolicy, 1105, "HY000", "shard",
				"statement references more than one database")}
		}
	}
	if db == "" {
		db = state.CurrentDB
	}
	if db == "" {
		return Decision{Action: ActionError, Err: wireerr.New(wireerr.RoutingPolicy, 1046, "3D000", "shard", "No database selected")}
	}
	server, found, _ := m.Lookup(db, now)
	if !found {
		return Decision{Action: ActionError, Err: wireerr.New(wireerr.RoutingPolicy, 1049, "42000", "shard", "Unknown database '"+db+"'")}
	}
	return Decision{Action: ActionRouteToServer, Server: server}
}

// IsShowDatabases/IsShowTables decide whether a statement must be
// broadcast to every shard and the results unioned, per spec section
// 4.E. Classification of the raw SQL text happens in pkg/classify; these
// helpers only name the two statement shapes this package treats
// specially.
const (
	ShowDatabases = "SHOW DATABASES"
	ShowTables    = "SHOW TABLES"
)
