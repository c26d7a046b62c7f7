// Package export writes the artifacts of a finished run: the metrics table,
// per-round losses, the selection log, final parameters and a run manifest.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inference-sim/fedsim/sim"
	"github.com/inference-sim/fedsim/sim/trace"
)

// Artifact file names inside a result directory.
const (
	SelectionLogFile = "client_selection_history.txt"
	ParametersFile   = "saved_model.json"
	ManifestFile     = "manifest.json"
	MetricsTextFile  = "metrics.prom"
)

// FileStem names per-run files after the experiment settings,
// e.g. "blobs_logreg_50_C0.1_iidtrue".
func FileStem(dataset, model string, rounds int, frac float64, iid bool) string {
	return fmt.Sprintf("%s_%s_%d_C%s_iid%t", dataset, model, rounds,
		strconv.FormatFloat(frac, 'g', -1, 64), iid)
}

// Manifest summarizes a run for machine consumption.
type Manifest struct {
	RunID   string                `json:"run_id"`
	Rounds  int                   `json:"rounds"`
	Final   *trace.EvalRecord     `json:"final,omitempty"`
	Summary *trace.HistorySummary `json:"summary"`
	History []trace.RoundRecord   `json:"history"`
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create result directory: %w", err)
	}
	return nil
}

// WriteMetricsCSV writes the tab-separated accuracy/loss table. Rows are an
// all-zero placeholder for the untrained model, one row per periodic evaluation,
// and the final evaluation when present.
func WriteMetricsCSV(path string, h *trace.History, final *trace.EvalRecord) error {
	rows := []trace.EvalRecord{{}}
	rows = append(rows, h.Evaluations()...)
	if final != nil {
		rows = append(rows, *final)
	}

	records := [][]string{{"", "Train acc", "Test acc", "Train loss", "Test loss"}}
	for i, r := range rows {
		records = append(records, []string{
			strconv.Itoa(i),
			formatFloat(r.TrainAccuracy),
			formatFloat(r.TestAccuracy),
			formatFloat(r.TrainLoss),
			formatFloat(r.TestLoss),
		})
	}
	return writeTSV(path, records)
}

// WriteLossCSV writes the per-round average selected loss.
func WriteLossCSV(path string, h *trace.History) error {
	records := [][]string{{"round", "train_loss"}}
	for _, r := range h.Rounds {
		records = append(records, []string{strconv.Itoa(r.Round), formatFloat(r.AverageLoss)})
	}
	return writeTSV(path, records)
}

// WriteSelectionLog writes one line per round listing the aggregated client ids.
func WriteSelectionLog(path string, h *trace.History) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create selection log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "Client selection history"); err != nil {
		return err
	}
	for _, r := range h.Rounds {
		if _, err := fmt.Fprintf(f, "Round %d, selected: %v \n", r.Round, r.Selected); err != nil {
			return err
		}
	}
	return f.Close()
}

// WriteParameters serializes a parameter set as JSON. Non-finite values are
// rejected before the file is created.
func WriteParameters(path string, params sim.ParameterSet) error {
	if err := checkParameters(params); err != nil {
		return err
	}
	return writeJSON(path, params)
}

// ReadParameters loads a parameter set written by WriteParameters.
func ReadParameters(path string) (sim.ParameterSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters: %w", err)
	}
	var params sim.ParameterSet
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	for k, t := range params {
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		if n != len(t.Data) {
			return nil, fmt.Errorf("parameter %q: shape %v does not match %d values", k, t.Shape, len(t.Data))
		}
	}
	return params, nil
}

// WriteManifest writes the run manifest.
func WriteManifest(path string, res *sim.Result) error {
	return writeJSON(path, Manifest{
		RunID:   res.RunID,
		Rounds:  len(res.History.Rounds),
		Final:   res.Final,
		Summary: trace.Summarize(res.History),
		History: res.History.Rounds,
	})
}

// WriteMetricsTextfile dumps the run's prometheus registry in text exposition format.
func WriteMetricsTextfile(path string, m *sim.Metrics) error {
	if m == nil {
		return fmt.Errorf("no metrics recorded")
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}

// WriteAll writes every artifact of res into dir. A result holding NaN or Inf
// anywhere JSON cannot encode it is rejected before any file is written.
func WriteAll(dir, stem string, res *sim.Result, m *sim.Metrics) error {
	if err := CheckFinite(res); err != nil {
		return fmt.Errorf("%w; no artifacts written", err)
	}
	if err := EnsureDir(dir); err != nil {
		return err
	}
	type step struct {
		name  string
		write func() error
	}
	steps := []step{
		{"metrics table", func() error {
			return WriteMetricsCSV(filepath.Join(dir, "fed_stats_"+stem+".csv"), res.History, res.Final)
		}},
		{"loss table", func() error { return WriteLossCSV(filepath.Join(dir, "fed_loss_"+stem+".csv"), res.History) }},
		{"selection log", func() error { return WriteSelectionLog(filepath.Join(dir, SelectionLogFile), res.History) }},
		{"parameters", func() error { return WriteParameters(filepath.Join(dir, ParametersFile), res.Global) }},
		{"manifest", func() error { return WriteManifest(filepath.Join(dir, ManifestFile), res) }},
	}
	if m != nil {
		steps = append(steps, step{"metrics textfile", func() error {
			return WriteMetricsTextfile(filepath.Join(dir, MetricsTextFile), m)
		}})
	}
	for _, s := range steps {
		if err := s.write(); err != nil {
			return fmt.Errorf("writing %s: %w", s.name, err)
		}
	}
	return nil
}

// CheckFinite reports the first NaN or Inf in the final parameters, the final
// evaluation or the round history. Such values usually mean training diverged.
func CheckFinite(res *sim.Result) error {
	if err := checkParameters(res.Global); err != nil {
		return err
	}
	if err := checkEval("final evaluation", res.Final); err != nil {
		return err
	}
	if res.History == nil {
		return nil
	}
	for _, r := range res.History.Rounds {
		if nonFinite(r.AverageLoss) {
			return fmt.Errorf("run diverged: round %d average loss is %v", r.Round, r.AverageLoss)
		}
		if nonFinite(r.LR) {
			return fmt.Errorf("run diverged: round %d learning rate is %v", r.Round, r.LR)
		}
		if err := checkEval(fmt.Sprintf("round %d evaluation", r.Round), r.Eval); err != nil {
			return err
		}
	}
	if s := trace.Summarize(res.History); nonFinite(s.MeanLoss) {
		return fmt.Errorf("run diverged: mean loss is %v", s.MeanLoss)
	}
	return nil
}

func checkParameters(params sim.ParameterSet) error {
	for _, k := range params.Keys() {
		for i, v := range params[k].Data {
			if nonFinite(v) {
				return fmt.Errorf("run diverged: parameter %q[%d] is %v", k, i, v)
			}
		}
	}
	return nil
}

func checkEval(what string, e *trace.EvalRecord) error {
	if e == nil {
		return nil
	}
	for _, v := range []float64{e.TrainAccuracy, e.TrainLoss, e.TestAccuracy, e.TestLoss} {
		if nonFinite(v) {
			return fmt.Errorf("run diverged: %s holds %v", what, v)
		}
	}
	return nil
}

func nonFinite(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

func writeTSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
