package monitor

import "sort"

// Elect chooses the master among servers per spec section 4.G: a server
// is eligible iff reachable, not in maintenance, accepting writes, and
// has no live slave thread pointing to a higher-priority reachable node
// outside its own cycle; among eligible servers, the previous master
// wins if still eligible, otherwise the highest-rank (lowest Rank value)
// server wins, ties broken by name.
func Elect(servers []*Server, topo *Topology, previousMaster string) (*Server, bool) {
	candidates := eligibleCandidates(servers, topo)
	if len(candidates) == 0 {
		return nil, false
	}
	for _, c := range candidates {
		if c.Name == previousMaster {
			return c, true
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Rank != candidates[j].Rank {
			return candidates[i].Rank < candidates[j].Rank
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates[0], true
}

func eligibleCandidates(servers []*Server, topo *Topology) []*Server {
	var out []*Server
	for _, s := range servers {
		if s.Excluded {
			continue
		}
		if !s.IsMasterCandidate() {
			continue
		}
		if topo.HasSlaveThreadOutsideCycle(s.Name) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ApplyElection sets the Master status bit on exactly the elected server
// and clears it (setting WasMaster) on every other server, enforcing
// master uniqueness across one monitored set.
func ApplyElection(servers []*Server, elected *Server) {
	for _, s := range servers {
		if s == elected {
			if !s.Status.Has(Master) {
				s.Status |= Master
			}
			continue
		}
		if s.Status.Has(Master) {
			s.Status &^= Master
			s.Status |= WasMaster
		}
	}
}
