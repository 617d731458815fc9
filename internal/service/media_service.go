package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
	"github.com/noah-isme/edu-enrollment-api/pkg/storage"
)

type objectStore interface {
	Name() string
	Upload(ctx context.Context, folder, name string, data []byte) (string, error)
}

// MediaConfig bounds accepted uploads.
type MediaConfig struct {
	MaxUploadBytes int64
	Image          storage.ImageOptions
}

// MediaService normalises uploaded images and hands them to the storage backend.
type MediaService struct {
	store   objectStore
	cfg     MediaConfig
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMediaService constructs MediaService.
func NewMediaService(store objectStore, cfg MediaConfig, metrics *MetricsService, logger *zap.Logger) *MediaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaService{store: store, cfg: cfg, metrics: metrics, logger: logger}
}

// Upload stores one image under folder and returns its durable URL.
func (s *MediaService) Upload(ctx context.Context, file dto.UploadFile, folder string) (string, error) {
	if len(file.Data) == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("image %q is empty", file.Name))
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(file.Data)) > s.cfg.MaxUploadBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("image %q exceeds %d bytes", file.Name, s.cfg.MaxUploadBytes))
	}
	normalised, err := storage.NormalizeImage(file.Data, s.cfg.Image)
	if err != nil {
		return "", appErrors.Validation(err, fmt.Sprintf("image %q could not be processed", file.Name))
	}

	name := storage.ObjectName(file.Name)
	url, err := s.store.Upload(ctx, folder, name, normalised)
	s.metrics.ObserveUpload(s.store.Name(), len(normalised), err)
	if err != nil {
		s.logger.Warn("image upload failed", zap.String("backend", s.store.Name()), zap.String("file", file.Name), zap.Error(err))
		return "", appErrors.Upstream(err, "image upload failed")
	}
	s.logger.Debug("image uploaded", zap.String("backend", s.store.Name()), zap.String("url", url), zap.Int("bytes", len(normalised)))
	return url, nil
}

// UploadAll uploads every file in order and stops at the first failure.
func (s *MediaService) UploadAll(ctx context.Context, files []dto.UploadFile, folder string) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, file := range files {
		url, err := s.Upload(ctx, file, folder)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}
