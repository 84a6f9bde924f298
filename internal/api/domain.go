package api

import "github.com/JaimeStill/pallor/internal/predictions"

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Predictions predictions.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	return &Domain{
		Predictions: predictions.New(
			runtime.Pipeline,
			runtime.Storage,
			ResultsPath,
			runtime.Logger,
		),
	}
}
