package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	objects map[string][]byte
	gets    int
}

func (f *fakeStore) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	modified := time.Now().Add(-time.Hour)
	for key, body := range f.objects {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(body))),
			LastModified: &modified,
		})
	}
	return out, nil
}

func (f *fakeStore) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func TestModelSyncDownloadsOnce(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{objects: map[string][]byte{
		"trained_models/":            nil,
		"trained_models/asthma.json": []byte(`{"disease":"Asthma"}`),
	}}
	sync := &ModelSync{Store: store, Bucket: "models", Prefix: "trained_models/", Dir: dir, Logger: zaptest.NewLogger(t)}

	n, err := sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	content, err := os.ReadFile(filepath.Join(dir, "asthma.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"disease":"Asthma"}`, string(content))

	n, err = sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "unchanged artifacts are skipped")
	assert.Equal(t, 1, store.gets)
}
