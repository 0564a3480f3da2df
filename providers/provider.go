package providers

import (
	"context"

	"metabolitics-api/models"
)

// AnalysisInput sind die (ggf. skalierten) Werte eines Falls.
type AnalysisInput struct {
	AnalysisID  uint
	Metabolites models.MeasurementSet
	Genes       models.MeasurementSet
}

// Result enthält die Pathway- und Reaktions-Scores eines Backend-Laufs.
type Result struct {
	Pathways  models.MeasurementSet
	Reactions models.MeasurementSet
}

// Backend ist das Interface, das jede Analysemethode (FVA, DPM, PE) implementieren muss.
type Backend interface {
	// Analyze führt die Analyse für einen Fall durch und blockiert bis zum Ergebnis.
	Analyze(ctx context.Context, in AnalysisInput) (*Result, error)

	// Method gibt die Methode zurück, die dieses Backend bedient.
	Method() models.Method
}

// Registry ordnet Methoden ihren Backends zu.
type Registry map[models.Method]Backend

// NewRegistry erstellt eine Registry aus einer Liste von Backends.
func NewRegistry(backends ...Backend) Registry {
	r := make(Registry, len(backends))
	for _, b := range backends {
		r[b.Method()] = b
	}
	return r
}

// Get gibt das Backend einer Methode zurück.
func (r Registry) Get(m models.Method) (Backend, bool) {
	b, ok := r[m]
	return b, ok
}
