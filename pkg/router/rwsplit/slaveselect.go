package rwsplit

import (
	"math/rand"
	"time"
)

// Criteria is the slave_selection_criteria of spec section 4.D.
type Criteria int

const (
	LeastGlobalConnections Criteria = iota
	LeastRouterConnections
	LeastBehindMaster
	LeastCurrentOperations
	Adaptive
)

// Candidate is one eligible slave, carrying the counters slave selection
// needs.
type Candidate struct {
	Name                string
	Rank                int
	ReplicationLag      time.Duration
	GlobalConnections   int
	RouterConnections   int
	CurrentOps          int
	AvgResponseTime     time.Duration // used only by Adaptive
}

// eligible filters candidates to those locked to currentRank (when >= 0)
// and within maxLag.
func eligible(cands []Candidate, currentRank int, maxLag time.Duration) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if currentRank >= 0 && c.Rank != currentRank {
			continue
		}
		if maxLag > 0 && c.ReplicationLag > maxLag {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Select picks one slave among cands per spec section 4.D's slave
// selection rules: only candidates whose rank matches currentRank (pass
// -1 to not lock to a rank) and whose replication lag is within maxLag
// (pass 0 to not bound it) are eligible; ok is false if none qualify.
func Select(cands []Candidate, currentRank int, maxLag time.Duration, criteria Criteria, rng *rand.Rand) (Candidate, bool) {
	pool := eligible(cands, currentRank, maxLag)
	if len(pool) == 0 {
		return Candidate{}, false
	}
	switch criteria {
	case LeastGlobalConnections:
		return minBy(pool, func(c Candidate) float64 { return float64(c.GlobalConnections) }), true
	case LeastRouterConnections:
		return minBy(pool, func(c Candidate) float64 { return float64(c.RouterConnections) }), true
	case LeastBehindMaster:
		return minBy(pool, func(c Candidate) float64 { return float64(c.ReplicationLag) }), true
	case LeastCurrentOperations:
		return minBy(pool, func(c Candidate) float64 { return float64(c.CurrentOps) }), true
	case Adaptive:
		return selectAdaptive(pool, rng), true
	default:
		return minBy(pool, func(c Candidate) float64 { return float64(c.CurrentOps) }), true
	}
}

func minBy(cands []Candidate, key func(Candidate) float64) Candidate {
	best := cands[0]
	bestKey := key(best)
	for _, c := range cands[1:] {
		if k := key(c); k < bestKey {
			best, bestKey = c, k
		}
	}
	return best
}

// selectAdaptive implements the weighted-roulette described in spec
// section 4.D: weight is the inverse cube of each slave's average
// response time, renormalised so no slave holds less than 1/197 of the
// wheel (a floor against starving a newly-joined, still-measuring slave).
func selectAdaptive(cands []Candidate, rng *rand.Rand) Candidate {
	const floorFraction = 1.0 / 197.0
	weights := make([]float64, len(cands))
	var total float64
	for i, c := range cands {
		rt := float64(c.AvgResponseTime)
		if rt <= 0 {
			rt = 1
		}
		w := 1.0 / (rt * rt * rt)
		weights[i] = w
		total += w
	}
	minWeight := floorFraction * total / (1 - floorFraction*float64(len(cands)))
	if minWeight > 0 {
		total = 0
		for i, w := range weights {
			if w < minWeight {
				weights[i] = minWeight
			}
			total += weights[i]
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	r := rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if r <= acc {
			return cands[i]
		}
	}
	return cands[len(cands)-1]
}

// normalizeOK reports whether every weight holds at least 1/197 of the total.
func normalizeOK(weights []float64) bool {
	var total float64
	for _, w := range weights {
		total += w
	}
	for _, w := range weights {
		if total > 0 && w/total < 1.0/197.0-1e-9 {
			return false
		}
	}
	return true
}
