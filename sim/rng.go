package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey and identical configuration
// MUST select the same clients and produce bit-for-bit identical global models.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemCandidates is the RNG subsystem for per-round candidate sampling.
	SubsystemCandidates = "candidates"

	// SubsystemSelection is the RNG subsystem for client selection policies.
	SubsystemSelection = "selection"

	// SubsystemPartition is the RNG subsystem for dataset partitioning.
	SubsystemPartition = "partition"

	// SubsystemModelInit is the RNG subsystem for initial model weights.
	SubsystemModelInit = "model_init"

	// SubsystemEval is the RNG subsystem for evaluation subsampling.
	SubsystemEval = "eval"
)

// SubsystemClientRound returns the subsystem name for a client's local training in a round.
func SubsystemClientRound(round int, client ClientID) string {
	return fmt.Sprintf("client_%d_round_%d", client, round)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName).
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
// Streams handed to worker goroutines come from ForClientRound, which never caches.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.derive(name)))
	p.subsystems[name] = rng
	return rng
}

// ForClientRound returns a fresh RNG for one client's local training in one round.
// The stream depends only on (key, round, client), so the order in which clients
// are trained does not change their shuffles.
func (p *PartitionedRNG) ForClientRound(round int, client ClientID) *rand.Rand {
	return rand.New(rand.NewSource(p.derive(SubsystemClientRound(round, client))))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func (p *PartitionedRNG) derive(name string) int64 {
	return int64(p.key) ^ fnv1a64(name)
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
