package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"metabolitics-api/config"
	"metabolitics-api/models"
	"metabolitics-api/providers"
)

var httpClient = &http.Client{Timeout: 10 * time.Minute}

// Fetcher kapselt die Aufrufe einer Analysemethode gegen die Simulations-Engine.
type Fetcher struct {
	BaseURL string
	Logger  *zap.Logger
	method  models.Method
	client  *http.Client
}

// NewFetcher erstellt einen Fetcher für eine Methode.
func NewFetcher(cfg *config.Config, logger *zap.Logger, method models.Method) *Fetcher {
	client := httpClient
	if cfg.SimulationTimeout > 0 {
		client = &http.Client{Timeout: cfg.SimulationTimeout}
	}
	return &Fetcher{
		BaseURL: strings.TrimRight(cfg.SimulationBaseURL, "/"),
		Logger:  logger.With(zap.String("backend", method.Slug())),
		method:  method,
		client:  client,
	}
}

// NewBackends erstellt je einen Fetcher für FVA, DPM und PE.
func NewBackends(cfg *config.Config, logger *zap.Logger) []providers.Backend {
	out := make([]providers.Backend, 0, len(models.Methods))
	for _, m := range models.Methods {
		out = append(out, NewFetcher(cfg, logger, m))
	}
	return out
}

// Method gibt die bediente Methode zurück.
func (f *Fetcher) Method() models.Method {
	return f.method
}

// Analyze sendet die Werte an {base}/{methode} und liefert Pathway- und Reaktions-Scores.
func (f *Fetcher) Analyze(ctx context.Context, in providers.AnalysisInput) (*providers.Result, error) {
	log := f.Logger.With(zap.Uint("analysis_id", in.AnalysisID))

	body, err := json.Marshal(AnalyzeRequest{
		AnalysisID:           in.AnalysisID,
		ConcentrationChanges: in.Metabolites,
		GeneChanges:          in.Genes,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := f.BaseURL + "/" + f.method.Slug()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("simulation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read simulation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("simulation engine returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out AnalyzeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode simulation response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("simulation engine error: %s", out.Error)
	}
	log.Info("Simulation abgeschlossen",
		zap.Int("pathways", len(out.Pathways)), zap.Int("reactions", len(out.Reactions)), zap.Duration("took", time.Since(start)))

	return &providers.Result{
		Pathways:  models.MeasurementSet(out.Pathways),
		Reactions: models.MeasurementSet(out.Reactions),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
