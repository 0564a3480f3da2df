package services

import (
	"fmt"

	"go.uber.org/zap"

	"metabolitics-api/models"
)

// Normalized enthält die Werte, die für einen Fall gespeichert und ans Backend gegeben werden.
type Normalized struct {
	Metabolites models.MeasurementSet
	Genes       models.MeasurementSet // nil, wenn nicht skaliert
	Scaled      bool
}

// Baseline ist der gemittelte Kontrollfall einer Studie.
type Baseline struct {
	Name string
	Case Case
}

// FoldChangeNormalizer setzt Fälle relativ zum Baseline-Fall ihrer Studie.
type FoldChangeNormalizer struct {
	scaler Scaler
	logger *zap.Logger
}

// NewFoldChangeNormalizer erstellt einen Normalizer. Ohne Scaler wird FoldChangeScaler verwendet.
func NewFoldChangeNormalizer(scaler Scaler, logger *zap.Logger) *FoldChangeNormalizer {
	if scaler == nil {
		scaler = FoldChangeScaler{}
	}
	return &FoldChangeNormalizer{scaler: scaler, logger: logger}
}

// FindBaseline sucht den Fall mit Label "<gruppe> label avg". Bei mehreren gewinnt der letzte in Namensreihenfolge.
func (n *FoldChangeNormalizer) FindBaseline(clean *CleanSubmission) *Baseline {
	label := models.BaselineLabel(clean.Group)
	var found *Baseline
	for _, name := range clean.CaseNames() {
		c := clean.Cases[name]
		if c.Label == label && len(c.Metabolites) > 0 {
			found = &Baseline{Name: name, Case: c}
		}
	}
	// Studienweite Transkriptome dienen als Gen-Referenz, wenn der Baseline-Fall keine Gene trägt.
	if found != nil && len(found.Case.Genes) == 0 && len(clean.Transcriptomes) > 0 {
		found.Case.Genes = clean.Transcriptomes.Clone()
	}
	return found
}

// Normalize berechnet die skalierten Werte eines Falls. Ohne Baseline werden die Rohwerte durchgereicht.
func (n *FoldChangeNormalizer) Normalize(name string, c Case, baseline *Baseline) (Normalized, error) {
	if baseline == nil || baseline.Name == name {
		return Normalized{Metabolites: c.Metabolites.Clone()}, nil
	}

	metabolites, err := n.scale(c.Label, c.Metabolites, baseline.Case.Metabolites)
	if err != nil {
		return Normalized{}, fmt.Errorf("scale metabolites of %q: %w", name, err)
	}
	out := Normalized{Metabolites: metabolites, Scaled: true}

	if len(baseline.Case.Genes) > 0 && len(c.Genes) > 0 {
		genes, err := n.scale(c.Label, c.Genes, baseline.Case.Genes)
		if err != nil {
			return Normalized{}, fmt.Errorf("scale genes of %q: %w", name, err)
		}
		out.Genes = genes
	}
	return out, nil
}

func (n *FoldChangeNormalizer) scale(label string, target, reference models.MeasurementSet) (models.MeasurementSet, error) {
	res, err := n.scaler.FitTransform(
		[]models.MeasurementSet{target.WithoutZeros(), reference.WithoutZeros()},
		[]string{label, HealthyLabel},
	)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("scaler returned no samples")
	}
	return res[0], nil
}
