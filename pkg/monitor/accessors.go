package monitor

// CurrentMaster returns the name of the server currently holding the
// Master status bit, set by the most recent Tick's call to
// ApplyElection, for routers that need to know where to send writes.
func (m *Monitor) CurrentMaster() (string, bool) {
	for _, s := range m.Servers {
		if s.Status.Has(Master) {
			return s.Name, true
		}
	}
	return "", false
}

// SlaveNames returns the names of every reachable, non-excluded member
// that does not currently hold the Master bit, for a slave-selection
// router's candidate pool.
func (m *Monitor) SlaveNames() []string {
	var out []string
	for _, s := range m.Servers {
		if s.Excluded || s.Status.Has(Master) {
			continue
		}
		if !s.Reachable() {
			continue
		}
		out = append(out, s.Name)
	}
	return out
}
