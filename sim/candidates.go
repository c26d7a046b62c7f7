package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// CandidateMode selects how the per-round candidate pool is sampled.
type CandidateMode string

const (
	// CandidateModeAuto samples weighted by data volume when a fraction is set.
	CandidateModeAuto CandidateMode = ""
	// CandidateModeRandom samples uniformly from the whole client population.
	CandidateModeRandom CandidateMode = "random"
	// CandidateModeWeighted samples with probability proportional to partition size.
	CandidateModeWeighted CandidateMode = "weighted"
)

// ValidCandidateModes is the set of recognized candidate sampling modes.
var ValidCandidateModes = map[CandidateMode]bool{
	CandidateModeAuto:     true,
	CandidateModeRandom:   true,
	CandidateModeWeighted: true,
}

// CandidateSelector decides which clients train in a round.
//
// With Fraction == 0 every client whose partition is larger than BatchSize is a
// candidate. With Fraction > 0, max(round(Fraction*NumClients), 1) clients are drawn
// without replacement from the whole population, uniformly (random mode) or
// proportionally to partition size (weighted/auto mode). Sampled pools are not
// filtered for eligibility; callers filter if they need to.
type CandidateSelector struct {
	NumClients int
	BatchSize  int
	Fraction   float64
	Mode       CandidateMode
}

// Count returns the number of clients drawn when Fraction > 0.
func (s CandidateSelector) Count() int {
	n := int(math.Round(s.Fraction * float64(s.NumClients)))
	return min(max(n, 1), s.NumClients)
}

// Select returns the round's candidates in ascending client id order.
func (s CandidateSelector) Select(pm PartitionMap, rng *rand.Rand) ([]ClientID, error) {
	if !ValidCandidateModes[s.Mode] {
		return nil, fmt.Errorf("unknown candidate mode %q", s.Mode)
	}
	if s.NumClients < 1 {
		return nil, fmt.Errorf("num clients must be >= 1, got %d", s.NumClients)
	}

	var out []ClientID
	switch {
	case s.Fraction <= 0:
		out = s.eligible(pm)
	case s.Mode == CandidateModeRandom:
		out = s.uniform(rng)
	default:
		var err error
		if out, err = s.weighted(pm, rng); err != nil {
			return nil, err
		}
	}
	sortClientIDs(out)
	return out, nil
}

func (s CandidateSelector) eligible(pm PartitionMap) []ClientID {
	out := make([]ClientID, 0, s.NumClients)
	for id := ClientID(0); int(id) < s.NumClients; id++ {
		if pm.Size(id) > s.BatchSize {
			out = append(out, id)
		}
	}
	return out
}

func (s CandidateSelector) uniform(rng *rand.Rand) []ClientID {
	perm := rng.Perm(s.NumClients)[:s.Count()]
	out := make([]ClientID, len(perm))
	for i, p := range perm {
		out[i] = ClientID(p)
	}
	return out
}

// weighted draws sequentially, renormalizing over the clients not yet drawn.
func (s CandidateSelector) weighted(pm PartitionMap, rng *rand.Rand) ([]ClientID, error) {
	weights := make([]float64, s.NumClients)
	nonZero := 0
	for i := range weights {
		weights[i] = float64(pm.Size(ClientID(i)))
		if weights[i] > 0 {
			nonZero++
		}
	}
	count := s.Count()
	if nonZero < count {
		return nil, fmt.Errorf("%w: %d clients hold data, cannot draw %d weighted candidates",
			ErrInvalidSelection, nonZero, count)
	}

	out := make([]ClientID, 0, count)
	for len(out) < count {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		u := rng.Float64() * total
		pick := -1
		for i, w := range weights {
			if w == 0 {
				continue
			}
			pick = i
			if u < w {
				break
			}
			u -= w
		}
		out = append(out, ClientID(pick))
		weights[pick] = 0
	}
	return out, nil
}
