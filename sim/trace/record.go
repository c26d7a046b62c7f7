// Package trace records the per-round history of a federated run.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// EvalRecord captures a periodic evaluation of the global model.
type EvalRecord struct {
	TrainAccuracy float64 `json:"train_accuracy"`
	TrainLoss     float64 `json:"train_loss"`
	TestAccuracy  float64 `json:"test_accuracy"`
	TestLoss      float64 `json:"test_loss"`
}

// RoundRecord captures a single completed round.
type RoundRecord struct {
	Round       int         `json:"round"`
	Candidates  []int       `json:"candidates"` // client ids that trained, ascending
	Selected    []int       `json:"selected"`   // client ids aggregated, in policy order
	AverageLoss float64     `json:"average_loss"`
	LR          float64     `json:"lr"`             // learning rate used for local training
	Eval        *EvalRecord `json:"eval,omitempty"` // nil on rounds without evaluation
}
