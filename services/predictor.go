package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"metabolitics-api/models"
)

// TrainedModel ist ein Modell-Artefakt pro Krankheit inkl. Kreuzvalidierungs-Scores.
type TrainedModel struct {
	Disease        string      `json:"disease" yaml:"disease"`
	Model          LinearModel `json:"model" yaml:"model"`
	FoldNumber     int         `json:"fold_number" yaml:"fold_number"`
	F1Score        float64     `json:"f1_score" yaml:"f1_score"`
	PrecisionScore float64     `json:"precision_score" yaml:"precision_score"`
	RecallScore    float64     `json:"recall_score" yaml:"recall_score"`
	Algorithm      string      `json:"algorithm" yaml:"algorithm"`
}

// ModelScores sind die Kennzahlen eines Modells für /models/scores.
type ModelScores struct {
	FoldNumber     int     `json:"fold_number"`
	F1Score        float64 `json:"f1_score"`
	PrecisionScore float64 `json:"precision_score"`
	RecallScore    float64 `json:"recall_score"`
	Algorithm      string  `json:"algorithm"`
}

// Prediction ist eine positive Vorhersage.
type Prediction struct {
	Disease string  `json:"disease"`
	Score   float64 `json:"pred_score"`
}

// LoadTrainedModel liest ein Artefakt (.yaml/.yml als YAML, sonst JSON).
func LoadTrainedModel(path string) (*TrainedModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m TrainedModel
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &m)
	default:
		err = json.Unmarshal(raw, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if m.Disease == "" {
		return nil, fmt.Errorf("%s: missing disease", filepath.Base(path))
	}
	return &m, nil
}

// DiseasePredictor bewertet Reaktionsvektoren mit allen Modellen im Modellverzeichnis.
type DiseasePredictor struct {
	DB     *gorm.DB
	Dir    string
	Logger *zap.Logger
}

// NewDiseasePredictor erstellt einen Predictor über dir.
func NewDiseasePredictor(db *gorm.DB, dir string, logger *zap.Logger) *DiseasePredictor {
	return &DiseasePredictor{DB: db, Dir: dir, Logger: logger}
}

// artifacts listet alle regulären Dateien außer versteckten (.keep, laufende Downloads), sortiert nach Name.
func (p *DiseasePredictor) artifacts() ([]string, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(p.Dir, e.Name()))
	}
	return paths, nil
}

// Predict bewertet x mit jedem Modell. Fehlerhafte Artefakte werden übersprungen.
func (p *DiseasePredictor) Predict(x models.MeasurementSet) ([]Prediction, error) {
	paths, err := p.artifacts()
	if err != nil {
		return nil, err
	}

	preds := []Prediction{}
	for _, path := range paths {
		m, err := LoadTrainedModel(path)
		if err != nil {
			p.artifactFailed(path, err)
			continue
		}
		label, proba, err := m.Model.Predict(x)
		if err != nil {
			p.artifactFailed(path, err)
			continue
		}
		if label == 0 {
			continue
		}
		best := proba[0]
		for _, v := range proba[1:] {
			best = math.Max(best, v)
		}
		preds = append(preds, Prediction{Disease: m.Disease, Score: math.Round(best*1000) / 1000})
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Score > preds[j].Score })
	return preds, nil
}

// PredictAnalysis lädt den Reaktionsvektor einer Analyse und ruft Predict auf.
func (p *DiseasePredictor) PredictAnalysis(ctx context.Context, analysisID uint, viewer *models.User) ([]Prediction, error) {
	a, err := LoadVisibleAnalysis(ctx, p.DB, analysisID, viewer)
	if err != nil {
		return nil, err
	}
	x, err := a.ReactionResults()
	if err != nil {
		return nil, err
	}
	if x == nil {
		return nil, ErrResultsPending
	}
	return p.Predict(x)
}

// Scores liefert die Kreuzvalidierungs-Kennzahlen aller lesbaren Modelle.
func (p *DiseasePredictor) Scores() (map[string]ModelScores, error) {
	paths, err := p.artifacts()
	if err != nil {
		return nil, err
	}
	scores := map[string]ModelScores{}
	for _, path := range paths {
		m, err := LoadTrainedModel(path)
		if err != nil {
			p.artifactFailed(path, err)
			continue
		}
		scores[m.Disease] = ModelScores{
			FoldNumber:     m.FoldNumber,
			F1Score:        m.F1Score,
			PrecisionScore: m.PrecisionScore,
			RecallScore:    m.RecallScore,
			Algorithm:      m.Algorithm,
		}
	}
	return scores, nil
}

func (p *DiseasePredictor) artifactFailed(path string, err error) {
	artifactErrors.Inc()
	p.Logger.Warn("Modell-Artefakt übersprungen", zap.String("file", filepath.Base(path)), zap.Error(err))
}
