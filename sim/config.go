package sim

import (
	"fmt"
	"math"
)

// SamplingConfig groups candidate sampling and client selection parameters.
type SamplingConfig struct {
	Fraction          float64       // per-round participation fraction; m = max(floor(Fraction*NumClients), 1)
	CandidateFraction float64       // 0 = every eligible client is a candidate
	CandidateMode     CandidateMode // "", "random" or "weighted"
	Policy            string        // client selection policy name ("" = random)
}

// ScheduleConfig groups the step learning-rate schedule.
type ScheduleConfig struct {
	LRIntervals []float64 // milestones as fractions of the total round count
	LRReduce    float64   // divisor applied at each milestone (> 0)
}

// Config is the orchestrator configuration.
type Config struct {
	NumClients int
	Rounds     int
	EvalEvery  int   // evaluate on rounds where round % EvalEvery == 0
	Seed       int64 // master seed for PartitionedRNG
	Workers    int   // concurrent local trainings per round; 0 or 1 = sequential

	Sampling SamplingConfig
	Local    TrainOptions
	Schedule ScheduleConfig
}

// SelectCount returns m, the number of clients aggregated each round.
func (c Config) SelectCount() int {
	// epsilon absorbs binary representation error, e.g. 0.29*100 = 28.999999999999996
	m := int(math.Floor(c.Sampling.Fraction*float64(c.NumClients) + 1e-9))
	return max(m, 1)
}

// Validate checks ranges and policy names.
func (c Config) Validate() error {
	if c.NumClients < 1 {
		return fmt.Errorf("num clients must be >= 1, got %d", c.NumClients)
	}
	if c.Rounds < 1 {
		return fmt.Errorf("rounds must be >= 1, got %d", c.Rounds)
	}
	if c.EvalEvery < 1 {
		return fmt.Errorf("eval every must be >= 1, got %d", c.EvalEvery)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	s := c.Sampling
	if s.Fraction <= 0 || s.Fraction > 1 {
		return fmt.Errorf("fraction must be in (0,1], got %f", s.Fraction)
	}
	if s.CandidateFraction < 0 || s.CandidateFraction > 1 {
		return fmt.Errorf("candidate fraction must be in [0,1], got %f", s.CandidateFraction)
	}
	if !ValidCandidateModes[s.CandidateMode] {
		return fmt.Errorf("unknown candidate mode %q", s.CandidateMode)
	}
	if !IsValidSelectionPolicy(s.Policy) {
		return fmt.Errorf("%w %q (valid: %v)", ErrUnrecognizedPolicy, s.Policy, SelectionPolicyNames())
	}
	if err := c.Local.Validate(); err != nil {
		return err
	}
	if c.Schedule.LRReduce <= 0 {
		return fmt.Errorf("lr reduce must be > 0, got %f", c.Schedule.LRReduce)
	}
	for _, f := range c.Schedule.LRIntervals {
		if f < 0 || f > 1 {
			return fmt.Errorf("lr interval fraction must be in [0,1], got %f", f)
		}
	}
	return nil
}

// LRSchedule divides the learning rate at precomputed round milestones.
type LRSchedule struct {
	milestones map[int]bool
	reduce     float64
}

// NewLRSchedule places one milestone at round(f * rounds) for each fraction f.
func NewLRSchedule(cfg ScheduleConfig, rounds int) LRSchedule {
	ms := make(map[int]bool, len(cfg.LRIntervals))
	for _, f := range cfg.LRIntervals {
		ms[int(math.Round(f*float64(rounds)))] = true
	}
	return LRSchedule{milestones: ms, reduce: cfg.LRReduce}
}

// After returns the learning rate to use once round has finished, and whether it changed.
func (s LRSchedule) After(round int, lr float64) (float64, bool) {
	if s.milestones[round] {
		return lr / s.reduce, true
	}
	return lr, false
}
