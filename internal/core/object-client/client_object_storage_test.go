package objectclient

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket is an in-memory bucket serving list, download and upload.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	uploaded []string
}

func (b *fakeBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k, v := range b.objects {
		if len(k) >= len(aws.ToString(in.Prefix)) && k[:len(aws.ToString(in.Prefix))] == aws.ToString(in.Prefix) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(v)))})
		}
	}
	return out, nil
}

func (b *fakeBucket) Download(_ context.Context, w io.WriterAt, in *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	b.mu.Lock()
	data := b.objects[aws.ToString(in.Key)]
	b.mu.Unlock()
	n, err := w.WriteAt(data, 0)
	return int64(n), err
}

func (b *fakeBucket) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[aws.ToString(in.Key)] = data
	b.uploaded = append(b.uploaded, aws.ToString(in.Key))
	return &manager.UploadOutput{}, nil
}

func newFakeClient(objects map[string][]byte) (*S3Client, *fakeBucket) {
	b := &fakeBucket{objects: objects}
	return newS3Client(b, b, b, "docs", nil), b
}

func TestDownloadPrefix(t *testing.T) {
	t.Run("Should mirror objects and skip files of the same size", func(t *testing.T) {
		c, _ := newFakeClient(map[string][]byte{
			"in/a.txt":       []byte("alpha"),
			"in/sub/b.md":    []byte("# beta"),
			"in/":            nil,
			"other/skip.txt": []byte("not mine"),
		})
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("ALPHA"), 0o644))

		rep, err := c.DownloadPrefix(context.Background(), "in/", dir)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Transferred)
		assert.Equal(t, 1, rep.Skipped)
		assert.EqualValues(t, 6, rep.Bytes)

		b, err := os.ReadFile(filepath.Join(dir, "sub", "b.md"))
		require.NoError(t, err)
		assert.Equal(t, "# beta", string(b))
		_, err = os.Stat(filepath.Join(dir, "skip.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Should refuse keys escaping the target directory", func(t *testing.T) {
		c, _ := newFakeClient(map[string][]byte{"in/../../evil.txt": []byte("x")})
		dir := t.TempDir()
		rep, err := c.DownloadPrefix(context.Background(), "in/", dir)
		require.NoError(t, err)
		assert.Equal(t, 0, rep.Transferred)
		assert.Equal(t, 1, rep.Skipped)
	})
}

func TestUploadDir(t *testing.T) {
	t.Run("Should upload new and changed files under the prefix", func(t *testing.T) {
		c, bucket := newFakeClient(map[string][]byte{"out/same.txt": []byte("same")})
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "same.txt"), []byte("same"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "new.json"), []byte(`{"a":1}`), 0o644))

		rep, err := c.UploadDir(context.Background(), dir, "out")
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Transferred)
		assert.Equal(t, 1, rep.Skipped)

		sort.Strings(bucket.uploaded)
		assert.Equal(t, []string{"out/nested/new.json"}, bucket.uploaded)
		assert.Equal(t, `{"a":1}`, string(bucket.objects["out/nested/new.json"]))
	})
}
