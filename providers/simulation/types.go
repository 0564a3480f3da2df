// Package simulation spricht die externe Simulations-Engine für FVA, DPM und PE über HTTP an.
package simulation

// AnalyzeRequest ist der JSON-Body eines Analyse-Aufrufs.
type AnalyzeRequest struct {
	AnalysisID           uint               `json:"analysis_id"`
	ConcentrationChanges map[string]float64 `json:"concentration_changes"`
	GeneChanges          map[string]float64 `json:"gene_changes,omitempty"`
}

// AnalyzeResponse ist die Antwort der Engine.
type AnalyzeResponse struct {
	Pathways  map[string]float64 `json:"pathways"`
	Reactions map[string]float64 `json:"reactions"`
	Error     string             `json:"error,omitempty"`
}
