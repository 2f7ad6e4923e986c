package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"content-hand/config"
)

type fakeBucket struct {
	objects   []types.Object
	puts      map[string][]byte
	deleted   []string
	failOnKey string
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return &s3.ListObjectsV2Output{Contents: f.objects}, nil
}

func (f *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failOnKey {
		return nil, errors.New("access denied")
	}
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func backupObjects(n int) []types.Object {
	base := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	out := make([]types.Object, n)
	for i := range out {
		// absichtlich unsortiert
		day := (i * 3) % n
		out[i] = types.Object{
			Key:          aws.String(fmt.Sprintf("backups/day-%02d.sql.gz", day)),
			LastModified: aws.Time(base.AddDate(0, 0, day)),
		}
	}
	return out
}

func TestBackupStore_KeyAndUpload(t *testing.T) {
	bucket := &fakeBucket{}
	b := NewBackupStore(bucket, &config.Config{S3Bucket: "media", BackupPrefix: "/backups/", KeepBackups: 3}, zap.NewNop())

	key := b.Key(time.Date(2026, 3, 11, 2, 30, 0, 0, time.FixedZone("CET", 3600)))
	assert.Equal(t, "backups/backup-2026-03-11T01-30-00Z.sql.gz", key)

	require.NoError(t, b.Upload(context.Background(), key, []byte("dump")))
	assert.Equal(t, []byte("dump"), bucket.puts["media/"+key], "falls back to S3_BUCKET")
}

func TestBackupStore_RotateKeepsNewest(t *testing.T) {
	bucket := &fakeBucket{objects: backupObjects(5)}
	b := NewBackupStore(bucket, &config.Config{BackupBucket: "backups", BackupPrefix: "backups", KeepBackups: 3}, zap.NewNop())

	deleted, err := b.Rotate(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"backups/day-00.sql.gz", "backups/day-01.sql.gz"}, deleted)
	assert.Equal(t, deleted, bucket.deleted)
}

func TestBackupStore_RotateNothingToDo(t *testing.T) {
	bucket := &fakeBucket{objects: backupObjects(2)}
	b := NewBackupStore(bucket, &config.Config{BackupBucket: "backups", KeepBackups: 3}, zap.NewNop())

	deleted, err := b.Rotate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deleted)
	assert.Empty(t, bucket.deleted)
}

func TestBackupStore_RotateContinuesAfterDeleteError(t *testing.T) {
	bucket := &fakeBucket{objects: backupObjects(5), failOnKey: "backups/day-00.sql.gz"}
	b := NewBackupStore(bucket, &config.Config{BackupBucket: "backups", BackupPrefix: "backups", KeepBackups: 3}, zap.NewNop())

	deleted, err := b.Rotate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"backups/day-01.sql.gz"}, deleted)
}
