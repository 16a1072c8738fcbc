package monitor

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// FailoverConfig mirrors the tunables spec section 4.G names for
// automated failover.
type FailoverConfig struct {
	FailCount           int // consecutive loops observing master unreachable before acting
	VerifyMasterFailure bool
	MasterFailureTimeout time.Duration
	FailoverTimeout      time.Duration
	PromotionSQLFile     string
}

// Executor runs the SQL commands failover/switchover/rejoin issue
// against a server; a real implementation dials the server with
// database/sql, grounded on spec section 1's "MariaDB client library
// used only as an outbound connection driver" boundary.
type Executor interface {
	Exec(server *Server, sql string) error
	GTIDPosition(server *Server) (string, error)
	SlaveIODisconnectedFor(server *Server) (time.Duration, bool)
}

// FailoverState tracks the consecutive-unreachable counter spec section
// 4.G's step 1 requires, per monitored set.
type FailoverState struct {
	consecutiveUnreachable int
}

// Observe records one poll's master-reachability outcome and reports
// whether the failcount threshold has now been reached.
func (f *FailoverState) Observe(masterReachable bool, cfg FailoverConfig) bool {
	if masterReachable {
		f.consecutiveUnreachable = 0
		return false
	}
	f.consecutiveUnreachable++
	return f.consecutiveUnreachable >= cfg.FailCount
}

// Reset clears the counter, called once a failover completes or the
// master becomes reachable again.
func (f *FailoverState) Reset() { f.consecutiveUnreachable = 0 }

// VerifyMasterFailure implements spec section 4.G step 2: under
// verify_master_failure, every surviving slave's IO thread must have
// been disconnected from the master for at least MasterFailureTimeout.
func VerifyMasterFailure(slaves []*Server, exec Executor, cfg FailoverConfig) bool {
	if !cfg.VerifyMasterFailure {
		return true
	}
	for _, s := range slaves {
		down, ok := exec.SlaveIODisconnectedFor(s)
		if !ok || down < cfg.MasterFailureTimeout {
			return false
		}
	}
	return true
}

// SelectPromotionCandidate implements spec section 4.G step 3: the most
// advanced slave (highest GTID position), not excluded, tie-broken by rank
// then name. Positions are compared by the sequence number of their last
// "domain-server_id-seq" triple (see gtidSeq); the domain is not compared.
func SelectPromotionCandidate(slaves []*Server, exec Executor) (*Server, bool) {
	type scored struct {
		s    *Server
		gtid string
	}
	var candidates []scored
	for _, s := range slaves {
		if s.Excluded {
			continue
		}
		gtid, err := exec.GTIDPosition(s)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{s: s, gtid: gtid})
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].gtid != candidates[j].gtid {
			si, iok := gtidSeq(candidates[i].gtid)
			sj, jok := gtidSeq(candidates[j].gtid)
			if iok && jok {
				if si != sj {
					return si > sj
				}
			} else {
				return candidates[i].gtid > candidates[j].gtid
			}
		}
		if candidates[i].s.Rank != candidates[j].s.Rank {
			return candidates[i].s.Rank < candidates[j].s.Rank
		}
		return candidates[i].s.Name < candidates[j].s.Name
	})
	return candidates[0].s, true
}

// gtidSeq returns the sequence number of the last "domain-server_id-seq"
// triple in gtid, or false if it does not end in a decimal number.
func gtidSeq(gtid string) (uint64, bool) {
	i := strings.LastIndexByte(gtid, '-')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(gtid[i+1:], 10, 64)
	return n, err == nil
}

// Promote runs spec section 4.G step 4 against the chosen slave.
func Promote(exec Executor, chosen *Server, promotionSQLFile string) error {
	cmds := []string{"STOP SLAVE", "RESET SLAVE ALL", "SET GLOBAL read_only=0"}
	for _, c := range cmds {
		if err := exec.Exec(chosen, c); err != nil {
			return err
		}
	}
	if promotionSQLFile != "" {
		if err := exec.Exec(chosen, "SOURCE "+promotionSQLFile); err != nil {
			return err
		}
	}
	chosen.Status |= Master
	chosen.ReadOnly = false
	return nil
}

// RedirectSlaves runs spec section 4.G step 5 against every surviving
// slave other than the newly promoted one.
func RedirectSlaves(exec Executor, slaves []*Server, newMaster *Server) error {
	for _, s := range slaves {
		if s == newMaster {
			continue
		}
		cmds := []string{
			"STOP SLAVE",
			"CHANGE MASTER TO MASTER_HOST='" + newMaster.Address + "', MASTER_USE_GTID=slave_pos",
			"START SLAVE",
		}
		for _, c := range cmds {
			if err := exec.Exec(s, c); err != nil {
				return err
			}
		}
		s.MasterHost = newMaster.Address
	}
	return nil
}

// Failover runs the whole spec section 4.G failover sequence, bounded by
// cfg.FailoverTimeout. The deadline is checked only before promotion: if
// it has passed by then, Failover returns an error with the cluster
// unchanged. Once promotion starts, Promote and RedirectSlaves run to
// completion or first error without further deadline checks.
func Failover(exec Executor, master *Server, slaves []*Server, cfg FailoverConfig) (*Server, error) {
	deadline := time.Now().Add(cfg.FailoverTimeout)
	if !VerifyMasterFailure(slaves, exec, cfg) {
		return nil, errFailoverAborted("master failure not verified")
	}
	if time.Now().After(deadline) {
		return nil, errFailoverAborted("timed out before promotion")
	}
	chosen, ok := SelectPromotionCandidate(slaves, exec)
	if !ok {
		return nil, errFailoverAborted("no eligible promotion candidate")
	}
	if time.Now().After(deadline) {
		return nil, errFailoverAborted("timed out before promotion")
	}
	if err := Promote(exec, chosen, cfg.PromotionSQLFile); err != nil {
		return nil, err
	}
	if err := RedirectSlaves(exec, slaves, chosen); err != nil {
		return nil, err
	}
	if master != nil {
		master.Status &^= Master
		master.Status |= WasMaster
	}
	return chosen, nil
}

type failoverError string

func (e failoverError) Error() string { return string(e) }

func errFailoverAborted(reason string) error {
	return failoverError("failover aborted: " + reason)
}
