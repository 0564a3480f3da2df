package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"metabolitics-api/models"
)

// CaseSummary ist ein Fall in einer Studienübersicht.
type CaseSummary struct {
	ID    uint       `json:"id"`
	Name  string     `json:"name"`
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// StudySummary ist ein Eintrag in /analysis/list bzw. /analysis/public.
type StudySummary struct {
	ID              uint          `json:"id"`
	Name            string        `json:"name"`
	Analyses        []CaseSummary `json:"analyses"`
	AnalysisMethod  string        `json:"analysis_method"`
	DiffusionMethod string        `json:"diffusion_method"`
	Disease         string        `json:"disease"`
	Start           *time.Time    `json:"start"`
	End             *time.Time    `json:"end"`
	AvgID           uint          `json:"avg_id"`
	Progress        int           `json:"progress"`
}

// SiblingCase ist ein Fall derselben Studie in der Detailansicht.
type SiblingCase struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// AnalysisDetail ist die Detailansicht einer Analyse.
type AnalysisDetail struct {
	CaseName        string                `json:"case_name"`
	Status          string                `json:"status"`
	ResultsPathway  models.MeasurementSet `json:"results_pathway"`
	ResultsReaction models.MeasurementSet `json:"results_reaction"`
	Method          string                `json:"method"`
	FoldChanges     models.MeasurementSet `json:"fold_changes"`
	StudyName       string                `json:"study_name"`
	Analyses        []SiblingCase         `json:"analyses"`
	Disease         string                `json:"disease"`
}

// MetaboliteHit ist ein Treffer der Metabolit-Suche.
type MetaboliteHit struct {
	StudyID uint   `json:"study_id"`
	Study   string `json:"study"`
	Method  string `json:"method"`
	Case    uint   `json:"case"`
	Name    string `json:"name"`
}

// Catalog beantwortet die lesenden Abfragen über Studien, Analysen und Krankheiten.
type Catalog struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewCatalog(db *gorm.DB, logger *zap.Logger) *Catalog {
	return &Catalog{DB: db, Logger: logger}
}

// PublicStudies listet alle Studien mit öffentlichen Analysen.
func (c *Catalog) PublicStudies(ctx context.Context) ([]StudySummary, error) {
	return c.studies(ctx, "type = ?", models.VisibilityPublic)
}

// UserStudies listet die privaten Studien eines Benutzers.
func (c *Catalog) UserStudies(ctx context.Context, user *models.User) ([]StudySummary, error) {
	return c.studies(ctx, "type = ? AND owner_user_id = ?", models.VisibilityPrivate, user.ID)
}

func (c *Catalog) studies(ctx context.Context, query string, args ...any) ([]StudySummary, error) {
	var analyses []models.Analysis
	err := c.DB.WithContext(ctx).
		Select("id", "name", "label", "study_id", "start_time", "end_time").
		Where(query, args...).
		Preload("Study.Disease").
		Order("study_id, id").
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}

	var out []StudySummary
	byStudy := map[uint]int{}
	for _, a := range analyses {
		idx, ok := byStudy[a.StudyID]
		if !ok {
			idx = len(out)
			byStudy[a.StudyID] = idx
			out = append(out, StudySummary{
				ID:              a.Study.ID,
				Name:            a.Study.Name,
				AnalysisMethod:  a.Study.MethodID.Name(),
				DiffusionMethod: a.Study.DiffusionName(),
				Disease:         a.Study.Disease.Name,
				Analyses:        []CaseSummary{},
			})
		}
		s := &out[idx]
		hasGroup := a.Study.Group != models.LabelNotProvided
		if hasGroup && a.Label == a.Study.BaselineLabel() {
			continue
		}
		s.Analyses = append(s.Analyses, CaseSummary{ID: a.ID, Name: a.Name, Start: a.StartTime, End: a.EndTime})
		if hasGroup && strings.Contains(a.Name, " label avg") {
			s.AvgID = a.ID
		}
	}

	summaries := out[:0]
	for _, s := range out {
		if len(s.Analyses) == 0 {
			continue
		}
		finalizeSummary(&s)
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// finalizeSummary setzt Start, Ende, Fortschritt und den Default für avg_id.
func finalizeSummary(s *StudySummary) {
	ended := 0
	var latest *time.Time
	for _, a := range s.Analyses {
		if a.Start != nil && (s.Start == nil || a.Start.Before(*s.Start)) {
			s.Start = a.Start
		}
		if a.End != nil {
			ended++
			if latest == nil || a.End.After(*latest) {
				latest = a.End
			}
		}
	}
	if ended == len(s.Analyses) {
		s.End = latest
	}
	s.Progress = int(math.Round(float64(ended) / float64(len(s.Analyses)) * 100))
	if s.AvgID == 0 {
		s.AvgID = s.Analyses[0].ID
	}
}

// Detail liefert die Detailansicht einer sichtbaren Analyse.
func (c *Catalog) Detail(ctx context.Context, analysisID uint, viewer *models.User) (*AnalysisDetail, error) {
	a, err := LoadVisibleAnalysis(ctx, c.DB, analysisID, viewer)
	if err != nil {
		return nil, err
	}
	var study models.Study
	if err := c.DB.WithContext(ctx).Preload("Disease").First(&study, a.StudyID).Error; err != nil {
		return nil, fmt.Errorf("load study: %w", err)
	}
	var dataset models.OmicsDataset
	if err := c.DB.WithContext(ctx).First(&dataset, a.MetabolomicsDatasetID).Error; err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	detail := &AnalysisDetail{
		CaseName:  a.Name,
		Status:    a.Status,
		Method:    study.MethodID.Name(),
		StudyName: study.Name,
		Disease:   study.Disease.Name,
		Analyses:  []SiblingCase{},
	}
	if detail.ResultsPathway, err = a.PathwayResults(); err != nil {
		return nil, err
	}
	if detail.ResultsReaction, err = a.ReactionResults(); err != nil {
		return nil, err
	}
	if detail.FoldChanges, err = dataset.Measurements(); err != nil {
		return nil, err
	}

	var siblings []models.Analysis
	if err := c.DB.WithContext(ctx).Select("id", "name", "label").Where("study_id = ?", study.ID).Find(&siblings).Error; err != nil {
		return nil, fmt.Errorf("load sibling analyses: %w", err)
	}
	var healthy *SiblingCase
	for _, s := range siblings {
		if s.Label == study.BaselineLabel() {
			healthy = &SiblingCase{ID: s.ID, Name: s.Name, Label: "healthy"}
			continue
		}
		detail.Analyses = append(detail.Analyses, SiblingCase{ID: s.ID, Name: s.Name, Label: study.Disease.Name})
	}
	sort.SliceStable(detail.Analyses, func(i, j int) bool {
		ni, nj := detail.Analyses[i].Name, detail.Analyses[j].Name
		if len(ni) != len(nj) {
			return len(ni) < len(nj)
		}
		return ni < nj
	})
	if healthy != nil {
		detail.Analyses = append([]SiblingCase{*healthy}, detail.Analyses...)
	}
	return detail, nil
}

type metaboliteRow struct {
	AnalysisID uint
	Data       []byte
	StudyID    uint
	StudyName  string
	MethodID   models.Method
}

// SearchByMetabolite findet öffentliche bzw. eigene Analysen, deren Metabolomics-Datensatz metabolite enthält.
func (c *Catalog) SearchByMetabolite(ctx context.Context, metabolite string, viewer *models.User) ([]MetaboliteHit, error) {
	q := c.DB.WithContext(ctx).Table("analyses").
		Select("analyses.id AS analysis_id, omics_datasets.data, studies.id AS study_id, studies.name AS study_name, studies.method_id").
		Joins("JOIN omics_datasets ON omics_datasets.id = analyses.metabolomics_dataset_id").
		Joins("JOIN studies ON studies.id = analyses.study_id").
		Where("omics_datasets.omics_type = ?", models.OmicsMetabolomics)
	if viewer != nil {
		q = q.Where("(analyses.type = ? OR analyses.owner_user_id = ?)", models.VisibilityPublic, viewer.ID)
	} else {
		q = q.Where("analyses.type = ?", models.VisibilityPublic)
	}

	var rows []metaboliteRow
	if err := q.Order("analyses.id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search datasets: %w", err)
	}
	hits := []MetaboliteHit{}
	for _, r := range rows {
		values, err := models.DecodeMeasurementSet(r.Data)
		if err != nil {
			c.Logger.Warn("Datensatz nicht lesbar", zap.Uint("analysis_id", r.AnalysisID), zap.Error(err))
			continue
		}
		if _, ok := values[metabolite]; !ok {
			continue
		}
		hits = append(hits, MetaboliteHit{
			StudyID: r.StudyID,
			Study:   r.StudyName,
			Method:  r.MethodID.Name(),
			Case:    r.AnalysisID,
			Name:    metabolite,
		})
	}
	return hits, nil
}

// Diseases listet alle Krankheiten.
func (c *Catalog) Diseases(ctx context.Context) ([]models.Disease, error) {
	var out []models.Disease
	if err := c.DB.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list diseases: %w", err)
	}
	return out, nil
}

// DeleteAnalyses löscht die eigenen Analysen aus ids samt Datensätzen. ErrNotFound, wenn keine passt.
func (c *Catalog) DeleteAnalyses(ctx context.Context, ids []uint, owner *models.User) (int, error) {
	if owner == nil {
		return 0, ErrNotAuthorized
	}
	var analyses []models.Analysis
	if len(ids) > 0 {
		if err := c.DB.WithContext(ctx).Where("id IN ? AND owner_user_id = ?", ids, owner.ID).Find(&analyses).Error; err != nil {
			return 0, fmt.Errorf("find analyses: %w", err)
		}
	}
	if len(analyses) == 0 {
		return 0, ErrNotFound
	}

	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var datasetIDs, analysisIDs []uint
		for _, a := range analyses {
			analysisIDs = append(analysisIDs, a.ID)
			datasetIDs = append(datasetIDs, a.MetabolomicsDatasetID)
			if a.TranscriptomicsDatasetID != nil {
				datasetIDs = append(datasetIDs, *a.TranscriptomicsDatasetID)
			}
		}
		if err := tx.Delete(&models.Analysis{}, analysisIDs).Error; err != nil {
			return fmt.Errorf("delete analyses: %w", err)
		}
		if err := tx.Delete(&models.OmicsDataset{}, datasetIDs).Error; err != nil {
			return fmt.Errorf("delete datasets: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.Logger.Info("Analysen gelöscht", zap.Uint("user_id", owner.ID), zap.Int("count", len(analyses)))
	return len(analyses), nil
}
