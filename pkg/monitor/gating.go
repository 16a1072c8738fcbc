package monitor

import "time"

// GatingConfig mirrors spec section 4.G's operation-gating tunables.
type GatingConfig struct {
	Passive                       bool
	ClusterOperationDisableTimer  time.Duration
	AssumeUniqueHostnames         bool
	AutoFailover                  bool
	AutoRejoin                    bool
}

// GateOperation implements spec section 4.G's "Operation gating" rule:
// every cluster-modifying operation requires the monitor not be passive,
// the last operation to have happened at least ClusterOperationDisableTimer
// ago, and assume_unique_hostnames to be set whenever auto_failover or
// auto_rejoin is enabled.
func GateOperation(cfg GatingConfig, lastOperation time.Time, now time.Time) (bool, string) {
	if cfg.Passive {
		return false, "monitor is passive"
	}
	if now.Sub(lastOperation) < cfg.ClusterOperationDisableTimer {
		return false, "cluster_operation_disable_timer has not elapsed"
	}
	if (cfg.AutoFailover || cfg.AutoRejoin) && !cfg.AssumeUniqueHostnames {
		return false, "assume_unique_hostnames required when auto_failover/auto_rejoin is enabled"
	}
	return true, ""
}
