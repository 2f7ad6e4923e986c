package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"content-hand/config"
)

// BackupAPI ist der Teil des S3-Clients, den Backups benötigen.
type BackupAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// BackupStore legt Datenbank-Dumps im Bucket ab und rotiert alte Dumps.
type BackupStore struct {
	client BackupAPI
	bucket string
	prefix string
	keep   int
	Logger *zap.Logger
}

// NewBackupStore erstellt einen BackupStore. Ohne BACKUP_S3_BUCKET wird S3_BUCKET verwendet.
func NewBackupStore(client BackupAPI, cfg *config.Config, logger *zap.Logger) *BackupStore {
	bucket := cfg.BackupBucket
	if bucket == "" {
		bucket = cfg.S3Bucket
	}
	return &BackupStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.BackupPrefix, "/") + "/",
		keep:   cfg.KeepBackups,
		Logger: logger,
	}
}

// Key liefert den Objektnamen eines Dumps zum Zeitpunkt t.
func (b *BackupStore) Key(t time.Time) string {
	return fmt.Sprintf("%sbackup-%s.sql.gz", b.prefix, t.UTC().Format("2006-01-02T15-04-05Z"))
}

// Upload lädt einen Dump hoch.
func (b *BackupStore) Upload(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("upload backup %s: %w", key, err)
	}
	return nil
}

// Rotate löscht alle Dumps unter dem Präfix bis auf die neuesten keep.
// Fehler beim Löschen einzelner Objekte werden geloggt, nicht zurückgegeben.
func (b *BackupStore) Rotate(ctx context.Context) ([]string, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	if len(out.Contents) <= b.keep {
		b.Logger.Info("No backup rotation needed", zap.Int("backups", len(out.Contents)), zap.Int("keep", b.keep))
		return nil, nil
	}

	objects := append([]types.Object(nil), out.Contents...)
	sort.Slice(objects, func(i, j int) bool {
		return aws.ToTime(objects[i].LastModified).After(aws.ToTime(objects[j].LastModified))
	})

	var deleted []string
	for _, obj := range objects[b.keep:] {
		key := aws.ToString(obj.Key)
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: obj.Key}); err != nil {
			b.Logger.Warn("Failed to delete old backup", zap.String("key", key), zap.Error(err))
			continue
		}
		deleted = append(deleted, key)
	}
	return deleted, nil
}

// DumpDatabase erstellt einen gzip-komprimierten pg_dump der Content-Datenbank.
func DumpDatabase(ctx context.Context, cfg *config.Config) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", cfg.DBHost,
		"-p", fmt.Sprint(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort kommt über PGPASSWORD
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+cfg.DBPassword)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pg_dump: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.Copy(zw, stdout); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("pg_dump: %w", err)
	}
	return buf.Bytes(), nil
}
