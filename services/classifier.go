package services

import (
	"fmt"
	"math"

	"metabolitics-api/models"
)

// LinearModel ist ein trainierter logistischer Klassifikator. Klasse 0 bedeutet "keine Krankheit".
type LinearModel struct {
	Type      string      `json:"type" yaml:"type"`
	Classes   []int       `json:"classes" yaml:"classes"`
	Features  []string    `json:"features" yaml:"features"`
	Coef      [][]float64 `json:"coef" yaml:"coef"`
	Intercept []float64   `json:"intercept" yaml:"intercept"`
}

// Validate prüft die Dimensionen.
func (m LinearModel) Validate() error {
	if m.Type != "logistic_regression" {
		return fmt.Errorf("unsupported model type %q", m.Type)
	}
	if len(m.Classes) < 2 {
		return fmt.Errorf("model needs at least two classes, got %d", len(m.Classes))
	}
	rows := len(m.Classes)
	if rows == 2 {
		rows = 1
	}
	if len(m.Coef) != rows || len(m.Intercept) != rows {
		return fmt.Errorf("expected %d coefficient rows and intercepts, got %d and %d", rows, len(m.Coef), len(m.Intercept))
	}
	for i, row := range m.Coef {
		if len(row) != len(m.Features) {
			return fmt.Errorf("coefficient row %d has %d entries for %d features", i, len(row), len(m.Features))
		}
	}
	return nil
}

// Predict gibt vorhergesagte Klasse und Klassenwahrscheinlichkeiten zurück. Fehlende Features zählen als 0.
func (m LinearModel) Predict(x models.MeasurementSet) (int, []float64, error) {
	if err := m.Validate(); err != nil {
		return 0, nil, err
	}
	z := make([]float64, len(m.Coef))
	for i, row := range m.Coef {
		z[i] = m.Intercept[i]
		for j, f := range m.Features {
			z[i] += row[j] * x[f]
		}
	}

	if len(m.Classes) == 2 {
		p := 1 / (1 + math.Exp(-z[0]))
		proba := []float64{1 - p, p}
		if z[0] > 0 {
			return m.Classes[1], proba, nil
		}
		return m.Classes[0], proba, nil
	}

	maxZ := z[0]
	for _, v := range z[1:] {
		maxZ = math.Max(maxZ, v)
	}
	proba := make([]float64, len(z))
	sum := 0.0
	for i, v := range z {
		proba[i] = math.Exp(v - maxZ)
		sum += proba[i]
	}
	best := 0
	for i := range proba {
		proba[i] /= sum
		if proba[i] > proba[best] {
			best = i
		}
	}
	return m.Classes[best], proba, nil
}
