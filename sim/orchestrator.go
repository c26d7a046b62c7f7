package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/fedsim/sim/trace"
)

// Collaborators are the components the orchestrator drives.
type Collaborators struct {
	Partitions PartitionMap
	Trainer    LocalTrainer
	Evaluator  Evaluator  // nil disables periodic and final evaluation
	TrainSet   Dataset    // evaluated for train accuracy/loss
	TestSet    Dataset    // evaluated for test accuracy/loss
	Aggregator Aggregator // nil defaults to FedAvg
	Metrics    *Metrics   // nil disables metric recording
}

// Result is everything a finished run hands to reporting.
type Result struct {
	RunID   string
	Global  ParameterSet
	History *trace.History
	Final   *trace.EvalRecord // nil when no evaluator was configured
}

// Orchestrator runs the federated round loop:
//
//	SelectCandidates → TrainLocal → SelectClients → Aggregate → Evaluate (periodic) → AdjustLR
//
// It exclusively owns the global state, which is replaced (never mutated) at the
// end of every round. All local trainings of a round read the same snapshot.
type Orchestrator struct {
	cfg        Config
	c          Collaborators
	candidates CandidateSelector
	policy     SelectionPolicy
	aggregator Aggregator
	schedule   LRSchedule
	rng        *PartitionedRNG
	runID      string
	log        *logrus.Entry

	global  ParameterSet
	lr      float64
	history *trace.History
}

// NewOrchestrator validates cfg and prepares a run starting from initial.
// initial is copied; the caller may keep using it.
func NewOrchestrator(cfg Config, initial ParameterSet, c Collaborators) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if c.Trainer == nil {
		return nil, fmt.Errorf("orchestrator requires a local trainer")
	}
	if len(initial) == 0 {
		return nil, fmt.Errorf("orchestrator requires a non-empty initial parameter set")
	}
	if c.Evaluator != nil && (c.TrainSet == nil || c.TestSet == nil) {
		return nil, fmt.Errorf("evaluation requires both train and test datasets")
	}
	policy, err := NewSelectionPolicy(cfg.Sampling.Policy)
	if err != nil {
		return nil, err
	}
	agg := c.Aggregator
	if agg == nil {
		agg = NewFedAvg()
	}

	runID := uuid.NewString()
	return &Orchestrator{
		cfg: cfg,
		c:   c,
		candidates: CandidateSelector{
			NumClients: cfg.NumClients,
			BatchSize:  cfg.Local.BatchSize,
			Fraction:   cfg.Sampling.CandidateFraction,
			Mode:       cfg.Sampling.CandidateMode,
		},
		policy:     policy,
		aggregator: agg,
		schedule:   NewLRSchedule(cfg.Schedule, cfg.Rounds),
		rng:        NewPartitionedRNG(NewSimulationKey(cfg.Seed)),
		runID:      runID,
		log:        logrus.WithField("run", runID),
		global:     initial.Clone(),
		lr:         cfg.Local.LR,
		history:    trace.NewHistory(),
	}, nil
}

// RunID returns the unique id of this run.
func (o *Orchestrator) RunID() string { return o.runID }

// LR returns the learning rate the next round will use.
func (o *Orchestrator) LR() float64 { return o.lr }

// Global returns a copy of the current global state.
func (o *Orchestrator) Global() ParameterSet { return o.global.Clone() }

// History returns the rounds recorded so far.
func (o *Orchestrator) History() *trace.History { return o.history }

// Run executes all configured rounds and the final evaluation.
// ctx is checked between rounds; a round in progress always completes.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	o.log.Infof("starting %d rounds: %d clients, m=%d, policy=%q, workers=%d",
		o.cfg.Rounds, o.cfg.NumClients, o.cfg.SelectCount(), o.cfg.Sampling.Policy, o.cfg.Workers)

	for round := 0; round < o.cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("stopped before round %d: %w", round, err)
		}
		if _, err := o.Step(round); err != nil {
			return nil, err
		}
	}

	res := &Result{RunID: o.runID, Global: o.Global(), History: o.history}
	if o.c.Evaluator != nil {
		final, err := o.evaluate(o.global)
		if err != nil {
			return nil, fmt.Errorf("final evaluation: %w", err)
		}
		o.log.Infof("final training accuracy: %.2f", final.TrainAccuracy)
		o.log.Infof("final testing accuracy: %.2f", final.TestAccuracy)
		res.Final = final
	}
	return res, nil
}

// Step runs one round and records it. Rounds must be stepped in increasing order.
// The global state, history and learning rate change only when the whole round
// succeeds; a failed Step leaves them as they were.
func (o *Orchestrator) Step(round int) (trace.RoundRecord, error) {
	if err := o.history.CheckNext(round); err != nil {
		return trace.RoundRecord{}, &RoundError{Round: round, Err: err}
	}
	candidates, err := o.selectCandidates(round)
	if err != nil {
		return trace.RoundRecord{}, err
	}
	m := o.cfg.SelectCount()
	if m > len(candidates) {
		return trace.RoundRecord{}, &RoundError{Round: round, Clients: candidates,
			Err: fmt.Errorf("%w: m=%d exceeds %d candidates", ErrInvalidSelection, m, len(candidates))}
	}

	snapshot := o.global.Clone()
	results, durations, err := o.trainCandidates(round, snapshot, candidates)
	if err != nil {
		return trace.RoundRecord{}, err
	}

	selected, err := o.selectClients(round, snapshot, results, m)
	if err != nil {
		return trace.RoundRecord{}, err
	}

	next, err := o.aggregator.Aggregate(selected, snapshot)
	if err == nil {
		err = snapshot.Compatible(next)
	}
	if err != nil {
		return trace.RoundRecord{}, &RoundError{Round: round, Clients: clientIDs(selected), Err: fmt.Errorf("aggregation: %w", err)}
	}

	rec := trace.RoundRecord{
		Round:       round,
		Candidates:  toInts(candidates),
		Selected:    toInts(clientIDs(selected)),
		AverageLoss: averageLoss(selected),
		LR:          o.lr,
	}
	o.log.Infof("Round %3d, selected clients %v, average loss %.3f", round, rec.Selected, rec.AverageLoss)

	if round%o.cfg.EvalEvery == 0 && o.c.Evaluator != nil {
		eval, err := o.evaluate(next)
		if err != nil {
			return trace.RoundRecord{}, &RoundError{Round: round, Err: fmt.Errorf("evaluation: %w", err)}
		}
		o.log.Infof("Round %d, training accuracy: %.2f, testing accuracy: %.2f", round, eval.TrainAccuracy, eval.TestAccuracy)
		rec.Eval = eval
	}

	if err := o.history.Record(rec); err != nil {
		return trace.RoundRecord{}, &RoundError{Round: round, Err: err}
	}
	o.global = next
	o.c.Metrics.observeTrainings(durations)
	o.c.Metrics.observeRound(rec)

	if lr, changed := o.schedule.After(round, o.lr); changed {
		o.log.Infof("Round %d, learning rate reduced %g -> %g", round, o.lr, lr)
		o.lr = lr
	}
	return rec, nil
}

// selectCandidates samples the pool and drops clients with no data.
func (o *Orchestrator) selectCandidates(round int) ([]ClientID, error) {
	sampled, err := o.candidates.Select(o.c.Partitions, o.rng.ForSubsystem(SubsystemCandidates))
	if err != nil {
		return nil, &RoundError{Round: round, Err: fmt.Errorf("candidate sampling: %w", err)}
	}
	o.log.Debugf("Round %d, candidate clients: %v", round, sampled)

	candidates := make([]ClientID, 0, len(sampled))
	var dropped []ClientID
	for _, id := range sampled {
		if o.c.Partitions.Size(id) == 0 {
			dropped = append(dropped, id)
			continue
		}
		candidates = append(candidates, id)
	}
	if len(dropped) > 0 {
		o.log.Warnf("Round %d, dropping sampled clients without data: %v", round, dropped)
	}
	if len(candidates) == 0 {
		return nil, &RoundError{Round: round, Clients: dropped,
			Err: fmt.Errorf("%w: none of %d sampled clients hold more data than required", ErrNoCandidates, len(sampled))}
	}
	return candidates, nil
}

// trainCandidates trains every candidate on the shared snapshot. Results are
// stored at the candidate's position, so their order is by client id no matter
// which worker finishes first. Returns only after every training has finished,
// together with each training's wall time.
func (o *Orchestrator) trainCandidates(round int, snapshot ParameterSet, candidates []ClientID) ([]LocalResult, []time.Duration, error) {
	opts := o.cfg.Local
	opts.LR = o.lr

	results := make([]LocalResult, len(candidates))
	durations := make([]time.Duration, len(candidates))
	var g errgroup.Group
	g.SetLimit(max(o.cfg.Workers, 1))
	for i, id := range candidates {
		i, id := i, id
		rng := o.rng.ForClientRound(round, id)
		indices := o.c.Partitions[id]
		g.Go(func() error {
			start := time.Now()
			res, err := o.c.Trainer.Train(snapshot, id, indices, opts, rng)
			if err != nil {
				return &RoundError{Round: round, Clients: []ClientID{id}, Err: err}
			}
			if err := snapshot.Compatible(res.Params); err != nil {
				return &RoundError{Round: round, Clients: []ClientID{id}, Err: err}
			}
			res.Client = id
			o.log.Debugf("Round %d, client %d trained on %d samples, loss %.4f", round, id, res.SampleCount, res.Loss)
			results[i] = res
			durations[i] = time.Since(start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return results, durations, nil
}

// selectClients applies the policy and materializes the selected results,
// rebuilding parameters from rescaled deltas when the policy returns them.
func (o *Orchestrator) selectClients(round int, snapshot ParameterSet, results []LocalResult, m int) ([]LocalResult, error) {
	fail := func(err error) error {
		return &RoundError{Round: round, Clients: clientIDs(results), Err: fmt.Errorf("client selection: %w", err)}
	}

	sel, err := o.policy.Select(SelectionInput{
		Results: results,
		Global:  snapshot,
		Count:   m,
		RNG:     o.rng.ForSubsystem(SubsystemSelection),
	})
	if err != nil {
		return nil, fail(err)
	}
	if len(sel.Indices) != m {
		return nil, fail(fmt.Errorf("%w: policy returned %d indices, want %d", ErrInvalidSelection, len(sel.Indices), m))
	}
	if sel.Deltas != nil && len(sel.Deltas) != len(results) {
		return nil, fail(fmt.Errorf("policy returned %d deltas for %d results", len(sel.Deltas), len(results)))
	}

	seen := make(map[int]bool, m)
	selected := make([]LocalResult, 0, m)
	for _, idx := range sel.Indices {
		if idx < 0 || idx >= len(results) || seen[idx] {
			return nil, fail(fmt.Errorf("%w: index %d invalid or repeated", ErrInvalidSelection, idx))
		}
		seen[idx] = true
		r := results[idx]
		if sel.Deltas != nil {
			params, err := snapshot.Add(sel.Deltas[idx])
			if err != nil {
				return nil, &RoundError{Round: round, Clients: []ClientID{r.Client}, Err: err}
			}
			r.Params = params
		}
		selected = append(selected, r)
	}
	return selected, nil
}

func (o *Orchestrator) evaluate(params ParameterSet) (*trace.EvalRecord, error) {
	train, err := o.c.Evaluator.Evaluate(params, o.c.TrainSet)
	if err != nil {
		return nil, fmt.Errorf("train set: %w", err)
	}
	test, err := o.c.Evaluator.Evaluate(params, o.c.TestSet)
	if err != nil {
		return nil, fmt.Errorf("test set: %w", err)
	}
	return &trace.EvalRecord{
		TrainAccuracy: train.Accuracy,
		TrainLoss:     train.Loss,
		TestAccuracy:  test.Accuracy,
		TestLoss:      test.Loss,
	}, nil
}

func averageLoss(results []LocalResult) float64 {
	sum := 0.0
	for _, r := range results {
		sum += r.Loss
	}
	return sum / float64(len(results))
}

func clientIDs(results []LocalResult) []ClientID {
	ids := make([]ClientID, len(results))
	for i, r := range results {
		ids[i] = r.Client
	}
	return ids
}

func toInts(ids []ClientID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
