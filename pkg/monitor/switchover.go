package monitor

import "time"

// SwitchoverConfig mirrors spec section 4.G's switchover_timeout.
type SwitchoverConfig struct {
	SwitchoverTimeout time.Duration
	FailoverConfig    FailoverConfig // reused for step 4 onwards
}

// Switchover runs spec section 4.G's manual switchover: demote the
// current master, wait for the chosen replacement to catch up, then run
// the same promotion/redirect steps as Failover.
func Switchover(exec Executor, master *Server, chosen *Server, slaves []*Server, cfg SwitchoverConfig) (*Server, error) {
	deadline := time.Now().Add(cfg.SwitchoverTimeout)

	if err := exec.Exec(master, "SET GLOBAL read_only=1"); err != nil {
		return nil, err
	}
	master.ReadOnly = true

	for {
		masterGTID, err := exec.GTIDPosition(master)
		if err != nil {
			return nil, err
		}
		chosenGTID, err := exec.GTIDPosition(chosen)
		if err != nil {
			return nil, err
		}
		cs, cok := gtidSeq(chosenGTID)
		ms, mok := gtidSeq(masterGTID)
		if (cok && mok && cs >= ms) || (!(cok && mok) && chosenGTID >= masterGTID) {
			break
		}
		if time.Now().After(deadline) {
			master.ReadOnly = false
			_ = exec.Exec(master, "SET GLOBAL read_only=0")
			return nil, errFailoverAborted("switchover timed out waiting for catch-up")
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := Promote(exec, chosen, cfg.FailoverConfig.PromotionSQLFile); err != nil {
		return nil, err
	}
	if err := RedirectSlaves(exec, slaves, chosen); err != nil {
		return nil, err
	}
	master.Status &^= Master
	master.Status |= WasMaster
	return chosen, nil
}
