// Package media stages queued attachments on local disk for the duration of
// a single publish attempt.
package media

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dailypost/internal/errors"
	"dailypost/internal/models"
	"dailypost/internal/security"
	"dailypost/pkg/constants"

	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"
)

const stagedPrefix = "stage_"

var errTooLarge = stderrors.New("attachment exceeds size limit")

// Fetcher streams an attachment from the inbound transport. It returns the
// transport's path for the file, which carries its extension.
type Fetcher interface {
	DownloadFile(ctx context.Context, fileID string, w io.Writer) (string, error)
}

// Staged is an attachment materialized in the cache directory. Cleanup is
// safe to call more than once.
type Staged struct {
	Path     string
	MimeType string
	Size     int64
	Cleanup  func()
}

// Stager turns attachment references into scoped temporary files
type Stager struct {
	fetcher      Fetcher
	cacheDir     string
	maxBytes     int64
	maxDimension int
	logger       *logrus.Logger
}

// NewStager creates the cache directory and returns a stager bound to it
func NewStager(fetcher Fetcher, config models.MediaConfig, logger *logrus.Logger) (*Stager, error) {
	if err := security.ValidateFilePath(config.CacheDir); err != nil {
		return nil, fmt.Errorf("invalid media cache directory: %w", err)
	}
	if err := os.MkdirAll(config.CacheDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Stager{
		fetcher:      fetcher,
		cacheDir:     config.CacheDir,
		maxBytes:     int64(config.MaxSizeMB) * constants.BytesPerMegabyte,
		maxDimension: config.MaxImageDimension,
		logger:       logger,
	}, nil
}

// Stage downloads ref into a fresh temp file. The caller must invoke Cleanup
// on the result whatever happens next; on error nothing is left behind.
func (s *Stager) Stage(ctx context.Context, ref string) (*Staged, error) {
	tmp, err := os.CreateTemp(s.cacheDir, stagedPrefix+"*")
	if err != nil {
		return nil, errors.NewAttachmentError("stage", ref, fmt.Errorf("failed to create temp file: %w", err))
	}
	path := tmp.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to remove staged attachment")
		}
	}

	lw := &limitedWriter{w: tmp, limit: s.maxBytes}
	remotePath, err := s.fetcher.DownloadFile(ctx, ref, lw)
	closeErr := tmp.Close()
	if err == nil && lw.exceeded {
		err = errTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		if stderrors.Is(err, errTooLarge) || lw.exceeded {
			return nil, errors.NewAttachmentError("download", ref, errTooLarge).
				WithContext("max_bytes", s.maxBytes)
		}
		return nil, errors.NewAttachmentError("download", ref, err)
	}

	mimeType, err := sniff(path, remotePath)
	if err != nil {
		cleanup()
		return nil, errors.NewAttachmentError("inspect", ref, err)
	}

	if IsResizable(mimeType) && s.maxDimension > 0 {
		if err := s.downscale(path, mimeType); err != nil {
			cleanup()
			return nil, errors.NewAttachmentError("resize", ref, err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		cleanup()
		return nil, errors.NewAttachmentError("inspect", ref, err)
	}

	s.logger.WithFields(logrus.Fields{
		"mime_type": mimeType,
		"size":      info.Size(),
	}).Debug("Staged attachment")

	return &Staged{
		Path:     path,
		MimeType: mimeType,
		Size:     info.Size(),
		Cleanup:  cleanup,
	}, nil
}

// downscale shrinks an image in place so neither side exceeds maxDimension
func (s *Stager) downscale(path, mimeType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= s.maxDimension && cfg.Height <= s.maxDimension {
		f.Close()
		return nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	bound := uint(s.maxDimension)
	resized := resize.Thumbnail(bound, bound, img, resize.Lanczos3)

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	switch mimeType {
	case "image/png":
		err = png.Encode(out, resized)
	default:
		err = jpeg.Encode(out, resized, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return fmt.Errorf("failed to encode resized image: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"original_width":  cfg.Width,
		"original_height": cfg.Height,
		"max_dimension":   s.maxDimension,
	}).Info("Downscaled oversized image attachment")
	return nil
}

// SweepStale removes staged files older than maxAge, left behind by a crash
// mid-dispatch. It returns how many files were removed.
func (s *Stager) SweepStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	removed := 0
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), stagedPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return removed, fmt.Errorf("failed to get file info: %w", err)
		}

		if now.Sub(info.ModTime()) > maxAge {
			path := filepath.Join(s.cacheDir, info.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("failed to remove old file: %w", err)
			}
			removed++
		}
	}

	return removed, nil
}

func sniff(path, remotePath string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, constants.MimeDetectionBufferSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return DetectMimeType(remotePath, head[:n]), nil
}

// limitedWriter fails once more than limit bytes are written. A zero limit
// disables the check.
type limitedWriter struct {
	w        io.Writer
	limit    int64
	written  int64
	exceeded bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.limit > 0 && l.written+int64(len(p)) > l.limit {
		l.exceeded = true
		return 0, errTooLarge
	}
	n, err := l.w.Write(p)
	l.written += int64(n)
	return n, err
}
