package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"metabolitics-api/config"
)

// NewS3Client erstellt einen S3-Client für den Modell-Bucket (S3-kompatibler Endpoint).
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.ModelsS3URL,
				SigningRegion:     cfg.ModelsS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.ModelsS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.ModelsS3Key, cfg.ModelsS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) { o.UsePathStyle = true }), nil
}

// ObjectStore ist der Teil des S3-Clients, den ModelSync benötigt.
type ObjectStore interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ModelSync spiegelt trainierte Modell-Artefakte aus einem Bucket ins lokale Modellverzeichnis.
type ModelSync struct {
	Store  ObjectStore
	Bucket string
	Prefix string
	Dir    string
	Logger *zap.Logger
}

// NewModelSync erstellt einen ModelSync aus der Konfiguration.
func NewModelSync(store ObjectStore, cfg *config.Config, logger *zap.Logger) *ModelSync {
	return &ModelSync{
		Store:  store,
		Bucket: cfg.ModelsS3Bucket,
		Prefix: cfg.ModelsS3Prefix,
		Dir:    cfg.ModelsDir,
		Logger: logger,
	}
}

// Sync lädt neue oder geänderte Artefakte herunter und gibt deren Anzahl zurück.
func (m *ModelSync) Sync(ctx context.Context) (int, error) {
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("create models dir: %w", err)
	}

	log := m.Logger.With(zap.String("bucket", m.Bucket), zap.String("prefix", m.Prefix))
	p := s3.NewListObjectsV2Paginator(m.Store, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.Bucket),
		Prefix: aws.String(m.Prefix),
	})

	downloaded := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return downloaded, fmt.Errorf("list models: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := path.Base(key)
			if strings.HasSuffix(key, "/") || name == "" || name == "." {
				continue
			}
			target := filepath.Join(m.Dir, name)
			if fi, err := os.Stat(target); err == nil && fi.Size() == aws.ToInt64(obj.Size) &&
				obj.LastModified != nil && !fi.ModTime().Before(*obj.LastModified) {
				continue
			}
			if err := m.download(ctx, key, target); err != nil {
				log.Warn("Modell-Download fehlgeschlagen", zap.String("key", key), zap.Error(err))
				continue
			}
			downloaded++
		}
	}
	log.Info("Modell-Synchronisation abgeschlossen", zap.Int("downloaded", downloaded))
	return downloaded, nil
}

func (m *ModelSync) download(ctx context.Context, key, target string) error {
	out, err := m.Store.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(m.Bucket), Key: aws.String(key)})
	if err != nil {
		return err
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp(m.Dir, ".download-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}
