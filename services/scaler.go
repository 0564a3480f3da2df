package services

import (
	"fmt"
	"math"

	"metabolitics-api/models"
)

// HealthyLabel markiert Referenz-Samples für den Scaler.
const HealthyLabel = "healthy"

// Scaler transformiert Samples gemeinsam anhand ihrer Labels.
type Scaler interface {
	FitTransform(samples []models.MeasurementSet, labels []string) ([]models.MeasurementSet, error)
}

// FoldChangeScaler berechnet log2(Wert / Referenzmittel). Die Referenz ist der Mittelwert aller "healthy"-Samples.
type FoldChangeScaler struct{}

func (FoldChangeScaler) FitTransform(samples []models.MeasurementSet, labels []string) ([]models.MeasurementSet, error) {
	if len(samples) != len(labels) {
		return nil, fmt.Errorf("fold-change scaler: %d samples but %d labels", len(samples), len(labels))
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for i, s := range samples {
		if labels[i] != HealthyLabel {
			continue
		}
		for k, v := range s {
			sums[k] += v
			counts[k]++
		}
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("fold-change scaler: no %q reference sample", HealthyLabel)
	}

	out := make([]models.MeasurementSet, len(samples))
	for i, s := range samples {
		scaled := make(models.MeasurementSet, len(s))
		for k, v := range s {
			n, ok := counts[k]
			if !ok {
				continue
			}
			fc := math.Log2(v / (sums[k] / float64(n)))
			if math.IsNaN(fc) || math.IsInf(fc, 0) {
				continue
			}
			scaled[k] = fc
		}
		out[i] = scaled
	}
	return out, nil
}
