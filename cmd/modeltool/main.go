// modeltool prüft und synchronisiert die trainierten Krankheitsmodelle ohne laufenden API-Server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metabolitics-api/config"
	"metabolitics-api/models"
	"metabolitics-api/services"
	"metabolitics-api/storage"
)

func main() {
	_ = godotenv.Load()
	var cfg config.Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand(&cfg, logger).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "modeltool",
		Short:        "Inspect, evaluate and sync trained disease models, back up the database",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfg.ModelsDir, "dir", cfg.ModelsDir, "models directory")

	root.AddCommand(scoresCommand(cfg, logger), predictCommand(cfg, logger), syncCommand(cfg, logger), backupCommand(cfg, logger))
	return root
}

func scoresCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "scores",
		Short: "Print cross-validation scores of every readable model",
		RunE: func(cmd *cobra.Command, args []string) error {
			scores, err := services.NewDiseasePredictor(nil, cfg.ModelsDir, logger).Scores()
			if err != nil {
				return err
			}
			diseases := make([]string, 0, len(scores))
			for d := range scores {
				diseases = append(diseases, d)
			}
			sort.Strings(diseases)
			out := cmd.OutOrStdout()
			for _, d := range diseases {
				s := scores[d]
				fmt.Fprintf(out, "%-40s folds=%d f1=%.3f precision=%.3f recall=%.3f %s\n",
					d, s.FoldNumber, s.F1Score, s.PrecisionScore, s.RecallScore, s.Algorithm)
			}
			return nil
		},
	}
}

func predictCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "predict <reactions.json>",
		Short: "Run all models against a reaction-level result vector",
		Long: `Run all models against a reaction-level result vector.

The file must contain a JSON object mapping reaction ids to numbers, e.g.
  {"HEX1": 0.8, "PGI": -0.2}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var x models.MeasurementSet
			if err := json.Unmarshal(raw, &x); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			preds, err := services.NewDiseasePredictor(nil, cfg.ModelsDir, logger).Predict(x)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(preds)
		},
	}
}

func syncCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Download new or changed model artifacts from the configured bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.ModelsS3Enabled() {
				return fmt.Errorf("MODELS_S3_BUCKET and MODELS_S3_URL must be set")
			}
			client, err := storage.NewS3Client(cfg)
			if err != nil {
				return err
			}
			n, err := storage.NewModelSync(client, cfg, logger).Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d artifacts updated in %s\n", n, cfg.ModelsDir)
			return nil
		},
	}
}
