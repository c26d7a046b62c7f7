package sim

import (
	"sort"
)

// ClientID identifies a simulated client, 0 <= id < num_clients.
type ClientID int

// PartitionMap assigns each client its dataset sample indices.
// Built once before the first round by a partitioner and never mutated afterwards.
type PartitionMap map[ClientID][]int

// Size returns the number of samples held by client id (0 if absent).
func (pm PartitionMap) Size(id ClientID) int {
	return len(pm[id])
}

// TotalSize returns the number of samples held by clients 0..numClients-1.
func (pm PartitionMap) TotalSize(numClients int) int {
	total := 0
	for id := ClientID(0); int(id) < numClients; id++ {
		total += pm.Size(id)
	}
	return total
}

// Clients returns the client ids present in the map in ascending order.
func (pm PartitionMap) Clients() []ClientID {
	ids := make([]ClientID, 0, len(pm))
	for id := range pm {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LocalResult is the outcome of one client's local training.
// Params is owned by the result: trainers deep-copy model state on capture.
type LocalResult struct {
	Client      ClientID
	Params      ParameterSet
	Loss        float64
	SampleCount int
}

func sortClientIDs(ids []ClientID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
