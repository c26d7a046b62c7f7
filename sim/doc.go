// Package sim provides the federated training core of fedsim.
//
// # Reading Guide
//
// Start with these files to understand one round:
//   - candidates.go: which clients train this round (eligibility filter, random or weighted sampling)
//   - trainer.go: local training of one client's replica from the shared global snapshot
//   - selection.go: which trained clients are aggregated (policy registry)
//   - aggregate.go: FedAvg, the sample-count-weighted parameter average
//   - orchestrator.go: the round loop tying them together
//
// # Architecture
//
// The sim package defines interfaces and the round loop; collaborators live in
// sub-packages:
//   - sim/dataset/: synthetic datasets and IID / non-IID partitioners
//   - sim/model/: pure-Go classifiers implementing Model
//   - sim/trace/: the append-only round history
//   - sim/export/: CSV, JSON, selection log and prometheus textfile writers
//
// # Key Interfaces
//
// The extension points are single-method or small interfaces:
//   - Model / ModelFactory: an opaque trainable unit and its constructor
//   - LocalTrainer: train one client from a global snapshot
//   - SelectionPolicy: pick the aggregated subset (register new ones with RegisterSelectionPolicy)
//   - Aggregator: combine selected parameter sets
//   - Evaluator: accuracy and loss of a snapshot on a dataset
//
// # Determinism
//
// All randomness flows from one seed through PartitionedRNG. Local trainings of
// a round may run on several goroutines; each gets its own (round, client) RNG
// stream and results are ordered by client id, so the worker count never
// changes the outcome.
package sim
