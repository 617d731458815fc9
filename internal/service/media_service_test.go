package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
	"github.com/noah-isme/edu-enrollment-api/pkg/storage"
)

func TestMediaUploadNormalisesAndStores(t *testing.T) {
	store := &memObjectStore{}
	metrics := NewMetricsService()
	svc := NewMediaService(store, MediaConfig{MaxUploadBytes: 1 << 20, Image: storage.ImageOptions{MaxWidth: 8, MaxHeight: 8}}, metrics, nil)

	url, err := svc.Upload(context.Background(), upload(t, "Badge Photo.PNG"), "certificates")
	require.NoError(t, err)

	assert.Contains(t, url, "https://cdn.test/certificates/badge-photo-")
	assert.Equal(t, 1, store.count())
	assert.Equal(t, uint64(1), metrics.Snapshot().Uploads)
}

func TestMediaUploadRejectsBadPayloads(t *testing.T) {
	store := &memObjectStore{}
	svc := NewMediaService(store, MediaConfig{MaxUploadBytes: 64}, nil, nil)

	_, err := svc.Upload(context.Background(), dto.UploadFile{Name: "empty.png"}, "c")
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.Upload(context.Background(), upload(t, "big.png"), "c")
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.Upload(context.Background(), dto.UploadFile{Name: "notes.txt", Data: []byte("plain text")}, "c")
	requireAppError(t, err, appErrors.ErrValidation)

	assert.Zero(t, store.count())
}

func TestMediaUploadBackendFailureIsUpstream(t *testing.T) {
	store := &memObjectStore{failAt: 1}
	svc := NewMediaService(store, MediaConfig{}, nil, nil)

	_, err := svc.Upload(context.Background(), upload(t, "a.png"), "c")
	requireAppError(t, err, appErrors.ErrUpstream)
}

func TestMediaUploadAllStopsAtFirstFailure(t *testing.T) {
	store := &memObjectStore{failAt: 2}
	svc := NewMediaService(store, MediaConfig{}, nil, nil)

	urls, err := svc.UploadAll(context.Background(), []dto.UploadFile{upload(t, "a.png"), upload(t, "b.png"), upload(t, "c.png")}, "c")
	requireAppError(t, err, appErrors.ErrUpstream)
	assert.Nil(t, urls)
	assert.Equal(t, 1, store.count())
}
