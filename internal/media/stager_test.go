package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dailypost/internal/errors"
	"dailypost/internal/models"
	"dailypost/pkg/constants"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	data       []byte
	remotePath string
	err        error
	calls      []string
}

func (f *fakeFetcher) DownloadFile(ctx context.Context, fileID string, w io.Writer) (string, error) {
	f.calls = append(f.calls, fileID)
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.Copy(w, bytes.NewReader(f.data)); err != nil {
		return "", err
	}
	return f.remotePath, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestStager(t *testing.T, fetcher Fetcher, cfg models.MediaConfig) (*Stager, string) {
	t.Helper()
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(t.TempDir(), "media")
	}
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	s, err := NewStager(fetcher, cfg, logger)
	require.NoError(t, err)
	return s, cfg.CacheDir
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestStager_StageAndCleanup(t *testing.T) {
	data := pngBytes(t, 10, 10)
	fetcher := &fakeFetcher{data: data, remotePath: "photos/file_1.png"}
	s, dir := newTestStager(t, fetcher, models.MediaConfig{MaxSizeMB: 1, MaxImageDimension: 100})

	staged, err := s.Stage(context.Background(), "file-id-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"file-id-1"}, fetcher.calls)
	assert.Equal(t, "image/png", staged.MimeType)
	assert.Equal(t, int64(len(data)), staged.Size)
	assert.Equal(t, dir, filepath.Dir(staged.Path))

	content, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, data, content)

	staged.Cleanup()
	_, err = os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err))
	staged.Cleanup()
	assert.Empty(t, dirEntries(t, dir))
}

func TestStager_DownscalesOversizedImage(t *testing.T) {
	fetcher := &fakeFetcher{data: pngBytes(t, 100, 40), remotePath: "photos/big.png"}
	s, _ := newTestStager(t, fetcher, models.MediaConfig{MaxSizeMB: 1, MaxImageDimension: 20})

	staged, err := s.Stage(context.Background(), "big")
	require.NoError(t, err)
	defer staged.Cleanup()

	f, err := os.Open(staged.Path)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)

	assert.Equal(t, "png", format)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
}

func TestStager_SniffsExtensionlessReference(t *testing.T) {
	fetcher := &fakeFetcher{data: pngBytes(t, 4, 4), remotePath: "documents/file_7"}
	s, _ := newTestStager(t, fetcher, models.MediaConfig{MaxSizeMB: 1})

	staged, err := s.Stage(context.Background(), "doc")
	require.NoError(t, err)
	defer staged.Cleanup()

	assert.Equal(t, "image/png", staged.MimeType)
}

func TestStager_RejectsOversizedDownload(t *testing.T) {
	fetcher := &fakeFetcher{data: bytes.Repeat([]byte{'x'}, constants.BytesPerMegabyte+1), remotePath: "videos/v.mp4"}
	s, dir := newTestStager(t, fetcher, models.MediaConfig{MaxSizeMB: 1})

	_, err := s.Stage(context.Background(), "video")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeAttachmentFetch))
	assert.Empty(t, dirEntries(t, dir))
}

func TestStager_FetchFailureLeavesNothing(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("file is too big")}
	s, dir := newTestStager(t, fetcher, models.MediaConfig{MaxSizeMB: 1})

	_, err := s.Stage(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeAttachmentFetch))
	assert.Equal(t, "file is too big", errors.Reason(err))
	assert.Empty(t, dirEntries(t, dir))
}

func TestStager_SweepStale(t *testing.T) {
	s, dir := newTestStager(t, &fakeFetcher{}, models.MediaConfig{MaxSizeMB: 1})

	old := time.Now().Add(-48 * time.Hour)
	oldStaged := filepath.Join(dir, stagedPrefix+"old")
	newStaged := filepath.Join(dir, stagedPrefix+"new")
	unrelated := filepath.Join(dir, "keep.txt")
	for _, p := range []string{oldStaged, newStaged, unrelated} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0600))
	}
	require.NoError(t, os.Chtimes(oldStaged, old, old))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	removed, err := s.SweepStale(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(oldStaged)
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, newStaged)
	assert.FileExists(t, unrelated)
}

func TestNewStager_InvalidDir(t *testing.T) {
	_, err := NewStager(&fakeFetcher{}, models.MediaConfig{CacheDir: "../escape"}, nil)
	assert.Error(t, err)
}
