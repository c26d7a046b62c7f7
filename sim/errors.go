package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a client has no samples to train on.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidSelection is returned when more clients are requested than the candidate pool holds.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrIncompatibleParameterSet is returned when two parameter sets differ in keys or shapes.
	ErrIncompatibleParameterSet = errors.New("incompatible parameter set")
	// ErrUnrecognizedPolicy is returned for an unknown client selection policy name.
	ErrUnrecognizedPolicy = errors.New("unrecognized client selection policy")
	// ErrUnrecognizedArchitecture is returned by model factories for unknown architectures.
	ErrUnrecognizedArchitecture = errors.New("unrecognized model architecture")
	// ErrUnrecognizedDataset is returned by dataset loaders for unknown dataset names.
	ErrUnrecognizedDataset = errors.New("unrecognized dataset")
	// ErrNoCandidates is returned when a round has no client left to train after filtering.
	ErrNoCandidates = errors.New("no candidate clients")
)

// RoundError attributes a fatal error to the round and clients it occurred in.
type RoundError struct {
	Round   int
	Clients []ClientID
	Err     error
}

func (e *RoundError) Error() string {
	if len(e.Clients) == 0 {
		return fmt.Sprintf("round %d: %v", e.Round, e.Err)
	}
	return fmt.Sprintf("round %d (clients %v): %v", e.Round, e.Clients, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}
