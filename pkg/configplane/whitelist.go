package configplane

// Whitelist names the keys of an object type's attributes.parameters
// that are mutable via alter, per spec section 4.H step 2. Keys absent
// from the whitelist (e.g. "router", "type", a service's "servers")
// are static: present at create time only, rejected on alter.
type Whitelist map[string]bool

// DefaultWhitelists mirrors the handful of fixed shapes spec section
// 4.H names across the five object types; callers may supply their own
// per deployment if a module defines extra runtime-mutable parameters.
var DefaultWhitelists = map[ObjectType]Whitelist{
	TypeServer: {
		"address":               true,
		"port":                  true,
		"rank":                  true,
		"extra_port":            true,
		"priority":              true,
		"monitoruser":           true,
		"monitorpw":             true,
		"persistmaxtime":        true,
		"max_routing_connections": true,
		// "protocol" and "type" are static — set at create, not altered.
	},
	TypeService: {
		"user":                    true,
		"password":                true,
		"max_connections":         true,
		"connection_timeout":      true,
		"max_retry_interval":      true,
		"slave_selection_criteria": true,
		"master_failure_mode":     true,
		"retain_last_statements":  true,
		// "router" and "servers"/"cluster" are static.
	},
	TypeListener: {
		"connection_init_sql_file": true,
		"connection_timeout":       true,
		// "protocol", "address", "port", "service" are static.
	},
	TypeMonitor: {
		"monitor_interval":             true,
		"backend_connect_timeout":      true,
		"backend_read_timeout":         true,
		"backend_write_timeout":        true,
		"auto_failover":                true,
		"auto_rejoin":                  true,
		"failcount":                    true,
		"verify_master_failure":        true,
		"master_failure_timeout":       true,
		"switchover_timeout":           true,
		"cluster_operation_disable_timer": true,
		// "module" and "servers" are static.
	},
	TypeFilter: {
		// Filter parameters are entirely module-defined; an empty
		// whitelist means every key is static — a filter instance must
		// be destroyed and recreated to change behavior, matching how
		// the teacher treats proxy-side filter config.
	},
}

// Diff implements spec section 4.H step 2: compute which parameter keys
// changed between old and candidate new parameter sets, rejecting any
// change to a non-whitelisted (static) key.
func Diff(objType ObjectType, oldParams, newParams map[string]interface{}, wl Whitelist) (map[string]interface{}, error) {
	changed := make(map[string]interface{})
	for k, newV := range newParams {
		oldV, existed := oldParams[k]
		if existed && equalParam(oldV, newV) {
			continue
		}
		if !wl[k] {
			return nil, errConfig("parameter %q is static and cannot be altered on a %s", k, objType)
		}
		changed[k] = newV
	}
	for k := range oldParams {
		if _, ok := newParams[k]; !ok {
			if !wl[k] {
				return nil, errConfig("parameter %q is static and cannot be removed on a %s", k, objType)
			}
			changed[k] = nil // tombstone: key removed
		}
	}
	return changed, nil
}

func equalParam(a, b interface{}) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	af, afok := toFloat(a)
	bf, bfok := toFloat(b)
	if afok && bfok {
		return af == bf
	}
	ab, abok := a.(bool)
	bb, bbok := b.(bool)
	if abok && bbok {
		return ab == bb
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
