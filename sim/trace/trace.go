package trace

import "fmt"

// History is the append-only round history of one run.
type History struct {
	Rounds []RoundRecord
}

// NewHistory creates an empty History ready for recording.
func NewHistory() *History {
	return &History{Rounds: make([]RoundRecord, 0)}
}

// CheckNext reports whether round may be recorded next. Round indices must strictly increase.
func (h *History) CheckNext(round int) error {
	if n := len(h.Rounds); n > 0 && round <= h.Rounds[n-1].Round {
		return fmt.Errorf("round %d recorded after round %d", round, h.Rounds[n-1].Round)
	}
	return nil
}

// Record appends a round after CheckNext accepts its index.
func (h *History) Record(r RoundRecord) error {
	if err := h.CheckNext(r.Round); err != nil {
		return err
	}
	h.Rounds = append(h.Rounds, r)
	return nil
}

// Selections returns the selected client ids of every round, in round order.
func (h *History) Selections() [][]int {
	out := make([][]int, len(h.Rounds))
	for i, r := range h.Rounds {
		out[i] = r.Selected
	}
	return out
}

// Evaluations returns the evaluation records in round order, skipping rounds without one.
func (h *History) Evaluations() []EvalRecord {
	out := make([]EvalRecord, 0)
	for _, r := range h.Rounds {
		if r.Eval != nil {
			out = append(out, *r.Eval)
		}
	}
	return out
}

// Losses returns the average selected loss of every round.
func (h *History) Losses() []float64 {
	out := make([]float64, len(h.Rounds))
	for i, r := range h.Rounds {
		out[i] = r.AverageLoss
	}
	return out
}
