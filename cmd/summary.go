package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/inference-sim/fedsim/sim"
	"github.com/inference-sim/fedsim/sim/trace"
)

// PrintSummary displays the outcome of a run.
func PrintSummary(w io.Writer, cfg RunConfig, res *sim.Result) {
	header := color.New(color.FgCyan, color.Bold)
	value := color.New(color.FgGreen)
	s := trace.Summarize(res.History)

	header.Fprintln(w, "=== Federated Simulation Summary ===")
	fmt.Fprintf(w, "Run ID               : %s\n", res.RunID)
	fmt.Fprintf(w, "Policy               : %s\n", policyName(cfg.ClientSelection))
	fmt.Fprintf(w, "Rounds               : %d\n", s.Rounds)
	fmt.Fprintf(w, "Distinct Selected    : %d of %d clients\n", s.DistinctSelected, cfg.NumClients)
	fmt.Fprintf(w, "Mean Selected Loss   : %.4f\n", s.MeanLoss)
	fmt.Fprintf(w, "Final Round Loss     : %.4f\n", s.FinalLoss)
	if res.Final != nil {
		fmt.Fprintf(w, "Final Train Accuracy : %s\n", value.Sprintf("%.2f%%", res.Final.TrainAccuracy))
		fmt.Fprintf(w, "Final Test Accuracy  : %s\n", value.Sprintf("%.2f%%", res.Final.TestAccuracy))
		fmt.Fprintf(w, "Final Test Loss      : %.4f\n", res.Final.TestLoss)
	}
	if s.Evaluations > 0 {
		fmt.Fprintf(w, "Best Test Accuracy   : %.2f%%\n", s.BestTestAccuracy)
	}
}

func policyName(name string) string {
	if name == "" {
		return sim.PolicyRandom
	}
	return name
}
