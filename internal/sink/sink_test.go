package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_WritesAtomically(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "payload.bin")

	dest, err := (&FileSink{Path: target}).Write(context.Background(), Payload{Data: []byte("payload")})
	require.NoError(t, err)
	assert.Equal(t, target, dest)
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	leftovers, err := filepath.Glob(filepath.Join(dir, "nested", "*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileSink_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0644))

	dest, err := (&FileSink{Path: target}).Write(context.Background(), Payload{Data: []byte("new")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "payload-(1).bin"), dest)

	original, _ := os.ReadFile(target)
	assert.Equal(t, "original", string(original))
	renewed, _ := os.ReadFile(dest)
	assert.Equal(t, "new", string(renewed))
}

func TestFileSink_SkipsEveryTakenName(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(target, []byte("first"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "payload-(1).bin"), []byte("second"), 0644))

	dest, err := (&FileSink{Path: target}).Write(context.Background(), Payload{Data: []byte("third")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "payload-(2).bin"), dest)

	second, _ := os.ReadFile(filepath.Join(dir, "payload-(1).bin"))
	assert.Equal(t, "second", string(second))
	third, _ := os.ReadFile(dest)
	assert.Equal(t, "third", string(third))
}

func TestFileSink_ConcurrentWritersGetDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "payload.bin")
	const writers = 8

	dests := make([]string, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dest, err := (&FileSink{Path: target}).Write(context.Background(), Payload{Data: []byte(fmt.Sprintf("writer %d", i))})
			assert.NoError(t, err)
			dests[i] = dest
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, dest := range dests {
		require.NotEmpty(t, dest)
		assert.False(t, seen[dest], "%s written twice", dest)
		seen[dest] = true
		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("writer %d", i), string(data))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, writers, "no temporary files left behind")
}

func TestFileSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&FileSink{Path: filepath.Join(t.TempDir(), "x")}).Write(ctx, Payload{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, DiscardSink{}, s)

	s, err = New(context.Background(), "out/file.bin")
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, s)

	s, err = New(context.Background(), "-")
	require.NoError(t, err)
	assert.IsType(t, WriterSink{}, s)

	_, err = New(context.Background(), "s3:///key")
	assert.Error(t, err)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	dest, err := WriterSink{W: &buf, Name: "buffer"}.Write(context.Background(), Payload{Data: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, "buffer", dest)
	assert.Equal(t, "abc", buf.String())
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		url, bucket, key string
		wantErr          bool
	}{
		{"s3://bucket/key.bin", "bucket", "key.bin", false},
		{"s3://bucket/deep/path/key.bin", "bucket", "deep/path/key.bin", false},
		{"s3://bucket", "", "", true},
		{"s3://bucket/", "", "", true},
		{"s3://bucket/dir/", "", "", true},
		{"s3:///key", "", "", true},
	}
	for _, tt := range tests {
		bucket, key, err := parseS3URL(tt.url)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.bucket, bucket)
		assert.Equal(t, tt.key, key)
	}
}

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.input = input
	f.body, _ = io.ReadAll(input.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{Location: "https://bucket.s3.amazonaws.com/" + aws.ToString(input.Key)}, nil
}

func TestS3Sink_Write(t *testing.T) {
	up := &fakeUploader{}
	s := &S3Sink{Bucket: "bucket", Key: "dir/payload.bin", uploader: up}

	dest, err := s.Write(context.Background(), Payload{Data: []byte("data"), SessionID: "sid", SHA256: "abc", SourceURL: "http://h/"})
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/dir/payload.bin", dest)
	assert.Equal(t, "bucket", aws.ToString(up.input.Bucket))
	assert.Equal(t, "dir/payload.bin", aws.ToString(up.input.Key))
	assert.Equal(t, int64(4), aws.ToInt64(up.input.ContentLength))
	assert.Equal(t, []byte("data"), up.body)
	assert.Equal(t, map[string]string{"rangeget-session": "sid", "sha256": "abc", "source-url": "http://h/"}, up.input.Metadata)

	up.err = errors.New("access denied")
	_, err = s.Write(context.Background(), Payload{Data: []byte("data")})
	assert.ErrorContains(t, err, "access denied")
}
