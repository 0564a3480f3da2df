package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metabolitics-api/config"
	"metabolitics-api/storage"
)

func backupCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Dump the postgres database into the models bucket and rotate old dumps",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBDriver != "postgres" {
				return fmt.Errorf("backup requires DB_DRIVER=postgres, got %q", cfg.DBDriver)
			}
			if !cfg.ModelsS3Enabled() {
				return fmt.Errorf("MODELS_S3_BUCKET and MODELS_S3_URL must be set")
			}

			dump, err := createDump(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("pg_dump: %w", err)
			}
			client, err := storage.NewS3Client(cfg)
			if err != nil {
				return err
			}
			archive := storage.NewBackupArchive(client, cfg, logger)
			key, err := archive.Upload(cmd.Context(), time.Now(), dump)
			if err != nil {
				return err
			}
			if _, err := archive.Rotate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backup written to s3://%s/%s\n", cfg.ModelsS3Bucket, key)
			return nil
		},
	}
}

// createDump streamt pg_dump gzip-komprimiert in den Speicher.
func createDump(ctx context.Context, cfg *config.Config) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", cfg.DBHost,
		"-p", strconv.Itoa(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort kommt über PGPASSWORD
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+cfg.DBPassword)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := io.Copy(gz, stdout); err != nil {
		_ = cmd.Wait()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		_ = cmd.Wait()
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return buf.Bytes(), nil
}
