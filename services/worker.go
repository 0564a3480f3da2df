package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"metabolitics-api/models"
	"metabolitics-api/providers"
	"metabolitics-api/queue"
	"metabolitics-api/storage"
)

// AnalysisWorker führt Backend-Läufe aus und schreibt deren Ergebnisse genau einmal pro Analyse.
type AnalysisWorker struct {
	DB             *gorm.DB
	Backends       providers.Registry
	Claimer        storage.Claimer
	Notifier       Notifier
	ResultsBaseURL string
	Logger         *zap.Logger
}

// NewAnalysisWorker erstellt einen Worker.
func NewAnalysisWorker(db *gorm.DB, backends providers.Registry, claimer storage.Claimer, notifier Notifier, resultsBaseURL string, logger *zap.Logger) *AnalysisWorker {
	return &AnalysisWorker{
		DB:             db,
		Backends:       backends,
		Claimer:        claimer,
		Notifier:       notifier,
		ResultsBaseURL: resultsBaseURL,
		Logger:         logger,
	}
}

// Handle ist der queue.Handler für verzögerte Analysen.
func (w *AnalysisWorker) Handle(ctx context.Context, job queue.Job) error {
	return w.Process(ctx, job.AnalysisID)
}

// Process führt das Backend für eine Analyse aus. Bereits beanspruchte oder abgeschlossene Analysen werden übersprungen.
func (w *AnalysisWorker) Process(ctx context.Context, analysisID uint) error {
	log := w.Logger.With(zap.Uint("analysis_id", analysisID))

	ok, err := w.Claimer.Claim(ctx, analysisID)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("Analyse wird bereits bearbeitet, überspringe")
		return nil
	}
	defer func() {
		if err := w.Claimer.Release(context.WithoutCancel(ctx), analysisID); err != nil {
			log.Warn("Claim konnte nicht freigegeben werden", zap.Error(err))
		}
	}()

	var analysis models.Analysis
	if err := w.DB.WithContext(ctx).Preload("Study").First(&analysis, analysisID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("Analyse existiert nicht mehr")
			return nil
		}
		return fmt.Errorf("load analysis %d: %w", analysisID, err)
	}
	if analysis.Completed() || analysis.Status != models.StatusPending {
		log.Info("Analyse bereits abgeschlossen", zap.String("status", analysis.Status))
		return nil
	}

	method := analysis.Study.MethodID
	backend, ok := w.Backends.Get(method)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoBackend, method.Slug())
	}

	input, err := w.loadInput(ctx, analysis)
	if err != nil {
		return err
	}

	res, runErr := backend.Analyze(ctx, input)
	if runErr != nil {
		log.Error("Backend-Lauf fehlgeschlagen", zap.String("method", method.Slug()), zap.Error(runErr))
		analysesCompleted.WithLabelValues(method.Slug(), models.StatusFailed).Inc()
		if err := w.finish(ctx, analysis, nil); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}

	analysesCompleted.WithLabelValues(method.Slug(), models.StatusDone).Inc()
	return w.finish(ctx, analysis, res)
}

// loadInput liest die gespeicherten Werte. Gene gehen nur skaliert ans Backend.
func (w *AnalysisWorker) loadInput(ctx context.Context, a models.Analysis) (providers.AnalysisInput, error) {
	in := providers.AnalysisInput{AnalysisID: a.ID}

	var metabolomics models.OmicsDataset
	if err := w.DB.WithContext(ctx).First(&metabolomics, a.MetabolomicsDatasetID).Error; err != nil {
		return in, fmt.Errorf("load metabolomics dataset of analysis %d: %w", a.ID, err)
	}
	values, err := metabolomics.Measurements()
	if err != nil {
		return in, err
	}
	in.Metabolites = values

	if a.TranscriptomicsDatasetID != nil {
		var transcriptomics models.OmicsDataset
		if err := w.DB.WithContext(ctx).First(&transcriptomics, *a.TranscriptomicsDatasetID).Error; err != nil {
			return in, fmt.Errorf("load transcriptomics dataset of analysis %d: %w", a.ID, err)
		}
		if transcriptomics.Scaled {
			if in.Genes, err = transcriptomics.Measurements(); err != nil {
				return in, err
			}
		}
	}
	return in, nil
}

// finish schreibt Ergebnis (res != nil) oder Fehlerstatus und zählt die Abschluss-Barriere der Studie herunter.
// Die Mail geht nach dem Commit raus, wenn die Barriere dabei 0 erreicht.
func (w *AnalysisWorker) finish(ctx context.Context, a models.Analysis, res *providers.Result) error {
	log := w.Logger.With(zap.Uint("analysis_id", a.ID), zap.Uint("study_id", a.StudyID))

	var notifyStudy *models.Study
	err := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]any{"status": models.StatusFailed}
		if res != nil {
			if res.Pathways == nil {
				res.Pathways = models.MeasurementSet{}
			}
			if res.Reactions == nil {
				res.Reactions = models.MeasurementSet{}
			}
			pathways, err := res.Pathways.JSON()
			if err != nil {
				return err
			}
			reactions, err := res.Reactions.JSON()
			if err != nil {
				return err
			}
			updates = map[string]any{
				"results_pathway":  pathways,
				"results_reaction": reactions,
				"status":           models.StatusDone,
				"end_time":         &now,
			}
		}

		result := tx.Model(&models.Analysis{}).
			Where("id = ? AND end_time IS NULL AND status = ?", a.ID, models.StatusPending).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("write results of analysis %d: %w", a.ID, result.Error)
		}
		if result.RowsAffected != 1 {
			log.Info("Ergebnis bereits geschrieben, verwerfe Duplikat")
			return nil
		}

		barrier := tx.Model(&models.Study{}).
			Where("id = ? AND pending_analyses > 0", a.StudyID).
			UpdateColumn("pending_analyses", gorm.Expr("pending_analyses - 1"))
		if barrier.Error != nil {
			return fmt.Errorf("update study barrier: %w", barrier.Error)
		}
		if barrier.RowsAffected != 1 {
			return nil
		}

		var study models.Study
		if err := tx.First(&study, a.StudyID).Error; err != nil {
			return fmt.Errorf("reload study: %w", err)
		}
		if study.PendingAnalyses == 0 && study.NotifyEmail != "" {
			notifyStudy = &study
		}
		return nil
	})
	if err != nil {
		return err
	}

	if notifyStudy != nil {
		n := ResultsNotification(notifyStudy.NotifyEmail, notifyStudy.Name, w.ResultsBaseURL, a.ID)
		if err := w.Notifier.Notify(ctx, n); err != nil {
			log.Error("Abschluss-Benachrichtigung fehlgeschlagen", zap.Error(err))
		}
	}
	return nil
}

// Sweep stellt verzögerte Analysen erneut ein, die länger als staleAfter ohne Ergebnis sind.
func (w *AnalysisWorker) Sweep(ctx context.Context, q queue.Queue, staleAfter time.Duration) (int, error) {
	var ids []uint
	err := w.DB.WithContext(ctx).Model(&models.Analysis{}).
		Where("end_time IS NULL AND status = ? AND created_at < ?", models.StatusPending, time.Now().Add(-staleAfter)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("find stale analyses: %w", err)
	}

	requeued := 0
	for _, id := range ids {
		if err := q.Enqueue(ctx, queue.NewJob(id)); err != nil {
			w.Logger.Warn("Erneutes Einstellen fehlgeschlagen", zap.Uint("analysis_id", id), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		w.Logger.Info("Hängende Analysen erneut eingestellt", zap.Int("count", requeued))
	}
	return requeued, nil
}
