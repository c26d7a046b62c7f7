package trace

// HistorySummary aggregates statistics from a History.
type HistorySummary struct {
	Rounds           int
	Evaluations      int
	DistinctSelected int
	SelectionCounts  map[int]int // client id → number of rounds it was aggregated in
	MeanLoss         float64
	FinalLoss        float64
	BestTestAccuracy float64
}

// Summarize computes aggregate statistics from a History.
// Safe for nil or empty histories (returns zero-value fields).
func Summarize(h *History) *HistorySummary {
	summary := &HistorySummary{
		SelectionCounts: make(map[int]int),
	}
	if h == nil || len(h.Rounds) == 0 {
		return summary
	}

	summary.Rounds = len(h.Rounds)
	totalLoss := 0.0
	for _, r := range h.Rounds {
		totalLoss += r.AverageLoss
		for _, id := range r.Selected {
			summary.SelectionCounts[id]++
		}
		if r.Eval != nil {
			summary.Evaluations++
			if r.Eval.TestAccuracy > summary.BestTestAccuracy {
				summary.BestTestAccuracy = r.Eval.TestAccuracy
			}
		}
	}
	summary.MeanLoss = totalLoss / float64(len(h.Rounds))
	summary.FinalLoss = h.Rounds[len(h.Rounds)-1].AverageLoss
	summary.DistinctSelected = len(summary.SelectionCounts)

	return summary
}
