package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"metabolitics-api/models"
	"metabolitics-api/queue"
)

// Mode legt fest, ob der Backend-Lauf im Request oder im Hintergrund passiert.
type Mode int

const (
	ModeDeferred Mode = iota
	ModeInline
)

// Pipeline beschreibt, wie eine Einreichung verarbeitet wird. Gewählt durch den Endpoint, nicht durch die Daten.
type Pipeline struct {
	Method models.Method
	Mode   Mode
	Notify bool
	// Public erzwingt öffentliche Sichtbarkeit unabhängig vom Flag im Request.
	Public bool
	Owner  OwnerResolver
}

// PipelineFor liefert die Pipeline eines Endpoints.
// Authentifiziert: immer verzögert ohne Mail. Öffentlich FVA: verzögert mit Mail über die Barriere.
// Öffentlich DPM/PE: im Request, danach genau eine Mail.
func PipelineFor(method models.Method, public bool, owner OwnerResolver) Pipeline {
	p := Pipeline{Method: method, Mode: ModeDeferred, Owner: owner}
	if !public {
		return p
	}
	p.Notify = true
	p.Public = true
	if method != models.MethodFVA {
		p.Mode = ModeInline
	}
	return p
}

// SubmitStatus ist das Ergebnis einer Einreichung.
type SubmitStatus string

const (
	StatusAccepted     SubmitStatus = "accepted"
	StatusMappingError SubmitStatus = "mapping_error"
)

// SubmitResult enthält die angelegten IDs. AnalysisID ist die zuletzt angelegte Analyse.
type SubmitResult struct {
	Status      SubmitStatus
	StudyID     uint
	AnalysisID  uint
	AnalysisIDs []uint
}

// Dispatcher nimmt Studien entgegen, speichert pro Fall Datensätze und Analyse und stößt das Backend an.
type Dispatcher struct {
	DB             *gorm.DB
	Mapper         *IdentifierMapper
	Normalizer     *FoldChangeNormalizer
	Worker         *AnalysisWorker
	Queue          queue.Queue
	Notifier       Notifier
	ResultsBaseURL string
	Logger         *zap.Logger
}

// NewDispatcher erstellt einen Dispatcher.
func NewDispatcher(db *gorm.DB, mapper *IdentifierMapper, normalizer *FoldChangeNormalizer, worker *AnalysisWorker,
	q queue.Queue, notifier Notifier, resultsBaseURL string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		DB:             db,
		Mapper:         mapper,
		Normalizer:     normalizer,
		Worker:         worker,
		Queue:          q,
		Notifier:       notifier,
		ResultsBaseURL: resultsBaseURL,
		Logger:         logger,
	}
}

type preparedCase struct {
	name  string
	label string
	raw   Case
	norm  Normalized
}

// Submit verarbeitet eine Einreichung vollständig. Ohne analysierbare Fälle entsteht kein Datensatz.
func (d *Dispatcher) Submit(ctx context.Context, sub *Submission, p Pipeline) (*SubmitResult, error) {
	log := d.Logger.With(zap.String("study", sub.StudyName), zap.String("method", p.Method.Slug()))

	clean := d.Mapper.Clean(sub)
	if len(clean.Cases) == 0 {
		log.Info("Keine Metabolite gemappt")
		return &SubmitResult{Status: StatusMappingError}, nil
	}

	var disease models.Disease
	if err := d.DB.WithContext(ctx).First(&disease, clean.Disease).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDiseaseNotFound
		}
		return nil, fmt.Errorf("load disease: %w", err)
	}
	owner, err := p.Owner.ResolveOwner(ctx, d.DB, clean)
	if err != nil {
		return nil, err
	}

	baseline := d.Normalizer.FindBaseline(clean)
	if baseline == nil {
		log.Info("Kein Baseline-Fall gefunden, verwende Rohwerte", zap.String("group", clean.Group))
	}
	var cases []preparedCase
	for _, name := range clean.CaseNames() {
		c := clean.Cases[name]
		if len(c.Metabolites) == 0 {
			continue
		}
		norm, err := d.Normalizer.Normalize(name, c, baseline)
		if err != nil {
			return nil, err
		}
		cases = append(cases, preparedCase{name: name, label: c.Label, raw: c, norm: norm})
	}
	if len(cases) == 0 {
		return &SubmitResult{Status: StatusMappingError}, nil
	}

	study := models.Study{
		Name:      clean.StudyName,
		MethodID:  p.Method,
		Group:     clean.Group,
		DiseaseID: disease.ID,
	}
	if clean.HasTranscriptomes {
		one := uint(1)
		study.DiffusionID = &one
	}
	if p.Notify && p.Mode == ModeDeferred {
		study.NotifyEmail = owner.NotifyEmail
		study.PendingAnalyses = len(cases)
	}

	public := clean.Public || p.Public
	result := &SubmitResult{Status: StatusAccepted}
	err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&study).Error; err != nil {
			return fmt.Errorf("create study: %w", err)
		}
		for _, pc := range cases {
			id, err := d.persistCase(tx, study, disease, owner, public, pc)
			if err != nil {
				return err
			}
			result.AnalysisIDs = append(result.AnalysisIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.StudyID = study.ID
	result.AnalysisID = result.AnalysisIDs[len(result.AnalysisIDs)-1]
	studiesSubmitted.WithLabelValues(p.Method.Slug()).Inc()
	log.Info("Studie angelegt", zap.Uint("study_id", study.ID), zap.Int("analyses", len(result.AnalysisIDs)))

	switch p.Mode {
	case ModeDeferred:
		for _, id := range result.AnalysisIDs {
			if err := d.Queue.Enqueue(ctx, queue.NewJob(id)); err != nil {
				// Der Sweeper stellt die Analyse später erneut ein.
				log.Error("Analyse konnte nicht eingestellt werden", zap.Uint("analysis_id", id), zap.Error(err))
			}
		}
	case ModeInline:
		for _, id := range result.AnalysisIDs {
			if err := d.Worker.Process(ctx, id); err != nil {
				log.Error("Inline-Analyse fehlgeschlagen", zap.Uint("analysis_id", id), zap.Error(err))
			}
		}
		if p.Notify {
			n := ResultsNotification(owner.NotifyEmail, study.Name, d.ResultsBaseURL, result.AnalysisID)
			if err := d.Notifier.Notify(ctx, n); err != nil {
				log.Error("Benachrichtigung fehlgeschlagen", zap.Error(err))
			}
		}
	}
	return result, nil
}

func (d *Dispatcher) persistCase(tx *gorm.DB, study models.Study, disease models.Disease, owner Owner, public bool, pc preparedCase) (uint, error) {
	data, err := pc.norm.Metabolites.JSON()
	if err != nil {
		return 0, err
	}
	metabolomics := models.OmicsDataset{
		OmicsType:  models.OmicsMetabolomics,
		Data:       data,
		Scaled:     pc.norm.Scaled,
		OwnerEmail: owner.Email,
		IsPublic:   public,
		DiseaseID:  disease.ID,
	}
	if err := tx.Create(&metabolomics).Error; err != nil {
		return 0, fmt.Errorf("create metabolomics dataset for %q: %w", pc.name, err)
	}

	now := time.Now()
	analysis := models.Analysis{
		Name:                  pc.name,
		Label:                 pc.label,
		Type:                  models.VisibilityPrivate,
		OwnerUserID:           owner.UserID,
		OwnerEmail:            owner.Email,
		StudyID:               study.ID,
		MetabolomicsDatasetID: metabolomics.ID,
		Status:                models.StatusPending,
		StartTime:             &now,
	}
	if public {
		analysis.Type = models.VisibilityPublic
	}

	genes := pc.norm.Genes
	if genes == nil {
		genes = pc.raw.Genes
	}
	if len(genes) > 0 {
		data, err := genes.JSON()
		if err != nil {
			return 0, err
		}
		transcriptomics := models.OmicsDataset{
			OmicsType:  models.OmicsTranscriptomics,
			Data:       data,
			Scaled:     pc.norm.Genes != nil,
			OwnerEmail: owner.Email,
			IsPublic:   public,
			DiseaseID:  disease.ID,
		}
		if err := tx.Create(&transcriptomics).Error; err != nil {
			return 0, fmt.Errorf("create transcriptomics dataset for %q: %w", pc.name, err)
		}
		analysis.TranscriptomicsDatasetID = &transcriptomics.ID
	}

	if err := tx.Create(&analysis).Error; err != nil {
		return 0, fmt.Errorf("create analysis for %q: %w", pc.name, err)
	}
	return analysis.ID, nil
}
