package monitor

// NeedsRejoin implements spec section 4.G's auto-rejoin predicate: a
// server that appears running and either has no slave thread, or has a
// slave thread against a stale (non-current) master while
// enforceSimpleTopology is on, should be redirected to the current
// master.
func NeedsRejoin(s *Server, currentMaster *Server, enforceSimpleTopology bool) bool {
	if !s.Status.Has(Running) || s.Status.Has(Maintenance) || s.Excluded {
		return false
	}
	if s == currentMaster {
		return false
	}
	if s.MasterHost == "" {
		return true
	}
	if enforceSimpleTopology && s.MasterHost != currentMaster.Address {
		return true
	}
	return false
}

// Rejoin redirects s to currentMaster via CHANGE MASTER TO, per spec
// section 4.G.
func Rejoin(exec Executor, s *Server, currentMaster *Server) error {
	cmds := []string{
		"STOP SLAVE",
		"CHANGE MASTER TO MASTER_HOST='" + currentMaster.Address + "', MASTER_USE_GTID=slave_pos",
		"START SLAVE",
	}
	for _, c := range cmds {
		if err := exec.Exec(s, c); err != nil {
			return err
		}
	}
	s.MasterHost = currentMaster.Address
	return nil
}
