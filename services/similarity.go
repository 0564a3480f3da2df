package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"metabolitics-api/models"
)

// SimilarityLimit ist die Anzahl der gemeldeten Krankheiten.
const SimilarityLimit = 5

// SimilarityFunc berechnet die Ähnlichkeit der Anfrage zu jedem Kandidaten (gleiche Reihenfolge).
type SimilarityFunc func(query models.MeasurementSet, candidates []models.MeasurementSet) []float64

// CosineSimilarity vergleicht über die Vereinigung der Schlüssel; fehlende Werte zählen als 0.
func CosineSimilarity(query models.MeasurementSet, candidates []models.MeasurementSet) []float64 {
	out := make([]float64, len(candidates))
	qNorm := norm(query)
	for i, c := range candidates {
		cNorm := norm(c)
		if qNorm == 0 || cNorm == 0 {
			continue
		}
		dot := 0.0
		for k, v := range query {
			dot += v * c[k]
		}
		out[i] = dot / (qNorm * cNorm)
	}
	return out
}

func norm(m models.MeasurementSet) float64 {
	sum := 0.0
	for _, v := range m {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// DiseaseScore ist ein Eintrag im Ranking.
type DiseaseScore struct {
	Disease string
	Score   float64
}

// SimilarityRanking ist absteigend sortiert und wird als geordnetes JSON-Objekt ausgegeben.
type SimilarityRanking []DiseaseScore

func (r SimilarityRanking) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Disease)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.Score)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RankDiseases mittelt die Scores je Schlüssel und gibt die besten limit absteigend zurück.
func RankDiseases(keys []string, scores []float64, limit int) SimilarityRanking {
	sums := map[string]float64{}
	counts := map[string]int{}
	var order []string
	for i, k := range keys {
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		sums[k] += scores[i]
		counts[k]++
	}

	ranking := make(SimilarityRanking, 0, len(order))
	for _, k := range order {
		ranking = append(ranking, DiseaseScore{Disease: k, Score: sums[k] / float64(counts[k])})
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Score > ranking[j].Score })
	if len(ranking) > limit {
		ranking = ranking[:limit]
	}
	return ranking
}

// SimilarityRanker vergleicht eine Analyse mit allen öffentlichen Analysen derselben Methode.
type SimilarityRanker struct {
	DB         *gorm.DB
	Similarity SimilarityFunc
	Logger     *zap.Logger
}

// NewSimilarityRanker erstellt einen Ranker. Ohne Funktion wird CosineSimilarity verwendet.
func NewSimilarityRanker(db *gorm.DB, fn SimilarityFunc, logger *zap.Logger) *SimilarityRanker {
	if fn == nil {
		fn = CosineSimilarity
	}
	return &SimilarityRanker{DB: db, Similarity: fn, Logger: logger}
}

type candidateRow struct {
	ID             uint
	ResultsPathway []byte
	Name           string
	Synonym        string
}

// LoadVisibleAnalysis lädt eine Analyse samt Studie und prüft die Sichtbarkeit für viewer.
func LoadVisibleAnalysis(ctx context.Context, db *gorm.DB, analysisID uint, viewer *models.User) (*models.Analysis, error) {
	var a models.Analysis
	if err := db.WithContext(ctx).Preload("Study").First(&a, analysisID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load analysis %d: %w", analysisID, err)
	}
	if !a.Authenticated(viewer) {
		return nil, ErrNotAuthorized
	}
	return &a, nil
}

// MostSimilarDiseases liefert die fünf ähnlichsten Krankheiten zur Analyse analysisID.
func (r *SimilarityRanker) MostSimilarDiseases(ctx context.Context, analysisID uint, viewer *models.User) (SimilarityRanking, error) {
	a, err := LoadVisibleAnalysis(ctx, r.DB, analysisID, viewer)
	if err != nil {
		return nil, err
	}
	query, err := a.PathwayResults()
	if err != nil {
		return nil, err
	}
	if query == nil {
		return nil, ErrResultsPending
	}

	excluded, err := r.excludedLabels(ctx)
	if err != nil {
		return nil, err
	}

	var rows []candidateRow
	err = r.DB.WithContext(ctx).Table("analyses").
		Select("analyses.id, analyses.results_pathway, diseases.name, diseases.synonym").
		Joins("JOIN studies ON studies.id = analyses.study_id").
		Joins("JOIN diseases ON diseases.id = studies.disease_id").
		Where("analyses.type = ? AND studies.method_id = ? AND analyses.results_pathway IS NOT NULL",
			models.VisibilityPublic, a.Study.MethodID).
		Where("analyses.label NOT IN ?", excluded).
		Order("analyses.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	keys := make([]string, 0, len(rows))
	vectors := make([]models.MeasurementSet, 0, len(rows))
	for _, row := range rows {
		v, err := models.DecodeMeasurementSet(row.ResultsPathway)
		if err != nil {
			r.Logger.Warn("Ungültiger Ergebnisvektor übersprungen", zap.Uint("analysis_id", row.ID), zap.Error(err))
			continue
		}
		keys = append(keys, models.Disease{Name: row.Name, Synonym: row.Synonym}.DisplayKey())
		vectors = append(vectors, v)
	}

	scores := r.Similarity(query, vectors)
	if len(scores) != len(vectors) {
		return nil, fmt.Errorf("similarity returned %d scores for %d candidates", len(scores), len(vectors))
	}
	return RankDiseases(keys, scores, SimilarityLimit), nil
}

// excludedLabels sind "not_provided" und das Baseline-Label jeder bekannten Gruppe.
func (r *SimilarityRanker) excludedLabels(ctx context.Context) ([]string, error) {
	var groups []string
	if err := r.DB.WithContext(ctx).Model(&models.Study{}).Distinct().Pluck("group_name", &groups).Error; err != nil {
		return nil, fmt.Errorf("load study groups: %w", err)
	}
	seen := map[string]bool{models.LabelNotProvided: true}
	labels := []string{models.LabelNotProvided}
	for _, g := range groups {
		l := models.BaselineLabel(g)
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	return labels, nil
}
