package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"metabolitics-api/config"
)

// BackupStore ist der Teil des S3-Clients, den BackupArchive benötigt.
type BackupStore interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// BackupArchive legt komprimierte Datenbank-Dumps unter Prefix ab und behält die neuesten Keep Stück.
type BackupArchive struct {
	Store  BackupStore
	Bucket string
	Prefix string
	Keep   int
	Logger *zap.Logger
}

// NewBackupArchive erstellt ein Archiv im Modell-Bucket.
func NewBackupArchive(store BackupStore, cfg *config.Config, logger *zap.Logger) *BackupArchive {
	return &BackupArchive{
		Store:  store,
		Bucket: cfg.ModelsS3Bucket,
		Prefix: cfg.BackupPrefix,
		Keep:   cfg.KeepBackups,
		Logger: logger,
	}
}

// BackupKey bildet den Objektnamen für einen Dump zum Zeitpunkt t.
func (b *BackupArchive) BackupKey(t time.Time) string {
	return b.Prefix + fmt.Sprintf("metabolitics-%s.sql.gz", t.UTC().Format("2006-01-02T15-04-05Z"))
}

// Upload speichert einen Dump und gibt den Objektnamen zurück.
func (b *BackupArchive) Upload(ctx context.Context, at time.Time, dump []byte) (string, error) {
	key := b.BackupKey(at)
	_, err := b.Store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(dump),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	b.Logger.Info("Backup hochgeladen", zap.String("bucket", b.Bucket), zap.String("key", key), zap.Int("bytes", len(dump)))
	return key, nil
}

// Rotate löscht alle Dumps unter Prefix bis auf die neuesten Keep. Fehler beim Löschen werden nur protokolliert.
func (b *BackupArchive) Rotate(ctx context.Context) (int, error) {
	var backups []types.Object
	p := s3.NewListObjectsV2Paginator(b.Store, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.Bucket),
		Prefix: aws.String(b.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list backups: %w", err)
		}
		for _, obj := range page.Contents {
			if strings.HasSuffix(aws.ToString(obj.Key), ".sql.gz") {
				backups = append(backups, obj)
			}
		}
	}

	if len(backups) <= b.Keep {
		b.Logger.Debug("Keine Rotation nötig", zap.Int("backups", len(backups)), zap.Int("keep", b.Keep))
		return 0, nil
	}

	sort.Slice(backups, func(i, j int) bool {
		return aws.ToTime(backups[i].LastModified).After(aws.ToTime(backups[j].LastModified))
	})

	deleted := 0
	for _, obj := range backups[b.Keep:] {
		_, err := b.Store.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.Bucket),
			Key:    obj.Key,
		})
		if err != nil {
			b.Logger.Warn("Altes Backup konnte nicht gelöscht werden", zap.String("key", aws.ToString(obj.Key)), zap.Error(err))
			continue
		}
		b.Logger.Info("Altes Backup gelöscht", zap.String("key", aws.ToString(obj.Key)))
		deleted++
	}
	return deleted, nil
}
