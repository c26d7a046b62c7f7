package dataset

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/fedsim/sim"
)

// IID shuffles the n sample indices and deals floor(n/numClients) of them to each
// client. Leftover samples are not assigned.
func IID(n, numClients int, rng *rand.Rand) (sim.PartitionMap, error) {
	if numClients < 1 {
		return nil, fmt.Errorf("num clients must be >= 1, got %d", numClients)
	}
	per := n / numClients
	perm := rng.Perm(n)
	pm := make(sim.PartitionMap, numClients)
	for c := 0; c < numClients; c++ {
		pm[sim.ClientID(c)] = perm[c*per : (c+1)*per : (c+1)*per]
	}
	return pm, nil
}

// NonIID assigns each client classesPerClient distinct labels drawn at random.
// Every label's samples are shuffled and split as evenly as possible among the
// clients holding that label (the first clients get the remainder). Labels no
// client drew stay unassigned. Partitions are disjoint by construction.
func NonIID(labels []int, numClasses, numClients, classesPerClient int, rng *rand.Rand) (sim.PartitionMap, error) {
	if numClients < 1 {
		return nil, fmt.Errorf("num clients must be >= 1, got %d", numClients)
	}
	if classesPerClient < 1 || classesPerClient > numClasses {
		return nil, fmt.Errorf("classes per client must be in [1,%d], got %d", numClasses, classesPerClient)
	}

	byClass := make([][]int, numClasses)
	for i, l := range labels {
		if l < 0 || l >= numClasses {
			return nil, fmt.Errorf("sample %d has label %d outside [0,%d)", i, l, numClasses)
		}
		byClass[l] = append(byClass[l], i)
	}

	holders := make([][]sim.ClientID, numClasses)
	for c := 0; c < numClients; c++ {
		for _, l := range rng.Perm(numClasses)[:classesPerClient] {
			holders[l] = append(holders[l], sim.ClientID(c))
		}
	}

	pm := make(sim.PartitionMap, numClients)
	for c := 0; c < numClients; c++ {
		pm[sim.ClientID(c)] = []int{}
	}
	for l, idxs := range byClass {
		h := holders[l]
		if len(h) == 0 {
			continue
		}
		rng.Shuffle(len(idxs), func(i, j int) { idxs[i], idxs[j] = idxs[j], idxs[i] })
		per, extra := len(idxs)/len(h), len(idxs)%len(h)
		start := 0
		for k, id := range h {
			size := per
			if k < extra {
				size++
			}
			pm[id] = append(pm[id], idxs[start:start+size]...)
			start += size
		}
	}
	return pm, nil
}
