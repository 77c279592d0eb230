package weights

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls   atomic.Int32
	delay   time.Duration
	err     error
	srcs    sync.Map
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, src, dst string) error {
	if f.calls.Add(1) == 1 && f.started != nil {
		close(f.started)
	}
	f.srcs.Store(src, true)
	if f.release != nil {
		<-f.release
	}
	time.Sleep(f.delay)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dst, []byte("payload:"+src), 0o644)
}

func TestEnsureDownloadsMissingFiles(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fetcher := &fakeFetcher{}
	cache := NewCache(filepath.Join(t.TempDir(), "weights"), "https://models.example/v1/", fetcher, logger)

	files, err := cache.Ensure(context.Background(), "yolov8s")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cache.Dir, "yolov8s.onnx"), files.Weights)
	assert.Equal(t, filepath.Join(cache.Dir, "yolov8s.json"), files.Metadata)
	assert.FileExists(t, files.Weights)
	assert.FileExists(t, files.Metadata)
	assert.NoFileExists(t, files.Weights+".part")
	assert.Equal(t, int32(2), fetcher.calls.Load())

	_, ok := fetcher.srcs.Load("https://models.example/v1/yolov8s.onnx")
	assert.True(t, ok)
}

func TestEnsureReusesCachedFiles(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fetcher := &fakeFetcher{}
	cache := NewCache(t.TempDir(), "https://models.example", fetcher, logger)

	_, err := cache.Ensure(context.Background(), "yolov8s")
	require.NoError(t, err)
	_, err = cache.Ensure(context.Background(), "yolov8s")
	require.NoError(t, err)

	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestEnsureFetchesOnlyMissingFile(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fetcher := &fakeFetcher{}
	cache := NewCache(t.TempDir(), "https://models.example", fetcher, logger)
	require.NoError(t, os.WriteFile(cache.Paths("yolov8s").Weights, []byte("onnx"), 0o644))

	_, err := cache.Ensure(context.Background(), "yolov8s")
	require.NoError(t, err)

	assert.Equal(t, int32(1), fetcher.calls.Load())
	_, ok := fetcher.srcs.Load("https://models.example/yolov8s.json")
	assert.True(t, ok)
}

func TestEnsureConcurrentCallsShareDownload(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fetcher := &fakeFetcher{delay: 50 * time.Millisecond}
	cache := NewCache(t.TempDir(), "https://models.example", fetcher, logger)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Ensure(context.Background(), "yolov8s")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestEnsureSurvivesFirstCallerCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fetcher := &fakeFetcher{started: make(chan struct{}), release: make(chan struct{})}
	cache := NewCache(t.TempDir(), "https://models.example", fetcher, logger)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.Ensure(ctxA, "yolov8s")
		errA <- err
	}()
	<-fetcher.started

	errB := make(chan error, 1)
	go func() {
		_, err := cache.Ensure(context.Background(), "yolov8s")
		errB <- err
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(fetcher.release)
	require.NoError(t, <-errB)
	assert.FileExists(t, cache.Paths("yolov8s").Weights)
	assert.FileExists(t, cache.Paths("yolov8s").Metadata)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestEnsureFetchFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fetcher := &fakeFetcher{err: errors.New("403 forbidden")}
	cache := NewCache(t.TempDir(), "https://models.example", fetcher, logger)

	_, err := cache.Ensure(context.Background(), "yolov8s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403 forbidden")
	assert.Contains(t, err.Error(), "https://models.example/yolov8s.onnx")
	assert.NoFileExists(t, cache.Paths("yolov8s").Weights)
}

func TestEnsureRejectsBadNames(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cache := NewCache(t.TempDir(), "https://models.example", &fakeFetcher{}, logger)

	for _, name := range []string{"", "../etc/passwd", `a\b`, "nested/model"} {
		t.Run(name, func(t *testing.T) {
			_, err := cache.Ensure(context.Background(), name)
			assert.Error(t, err)
		})
	}
}

func TestGetterFetcherHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("weights for " + r.URL.Path))
	}))
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "yolov8s.onnx")
	require.NoError(t, GetterFetcher{}.Fetch(context.Background(), server.URL+"/yolov8s.onnx", dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "weights for /yolov8s.onnx", string(data))
}
