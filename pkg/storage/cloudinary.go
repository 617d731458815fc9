package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStorage uploads images to Cloudinary and returns their secure URL.
type CloudinaryStorage struct {
	client *cld.Cloudinary
}

// NewCloudinaryStorage builds a client from explicit credentials.
func NewCloudinaryStorage(cloudName, apiKey, apiSecret string) (*CloudinaryStorage, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("cloudinary credentials are incomplete")
	}
	client, err := cld.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	client.Config.URL.Secure = true
	return &CloudinaryStorage{client: client}, nil
}

// Name identifies the backend in logs and metrics.
func (s *CloudinaryStorage) Name() string {
	return DriverCloudinary
}

// Upload sends the image to folder under a public id derived from name.
func (s *CloudinaryStorage) Upload(ctx context.Context, folder, name string, data []byte) (string, error) {
	publicID := strings.TrimSuffix(name, path.Ext(name))
	res, err := s.client.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:         folder,
		PublicID:       publicID,
		ResourceType:   "image",
		Overwrite:      api.Bool(false),
		UniqueFilename: api.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload returned no url")
	}
	return res.SecureURL, nil
}
