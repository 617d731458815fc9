package storage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestNormalizeImageFitsBoxAndEncodesJPEG(t *testing.T) {
	out, err := NormalizeImage(pngFixture(t, 400, 200), ImageOptions{MaxWidth: 100, MaxHeight: 100, JPEGQuality: 80})
	require.NoError(t, err)

	img, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, img.Width)
	assert.Equal(t, 50, img.Height)
}

func TestNormalizeImageKeepsSmallImages(t *testing.T) {
	out, err := NormalizeImage(pngFixture(t, 40, 30), ImageOptions{MaxWidth: 100, MaxHeight: 100})
	require.NoError(t, err)
	decoded, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, decoded.Bounds().Dx())
}

func TestNormalizeImageRejectsGarbage(t *testing.T) {
	_, err := NormalizeImage([]byte("not an image"), ImageOptions{})
	assert.Error(t, err)
	_, err = NormalizeImage(nil, ImageOptions{})
	assert.Error(t, err)
}

func TestLocalStorageUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://localhost:5050/uploads/")
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), "certificates", "a b.jpg", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5050/uploads/certificates/a%20b.jpg", url)

	content, err := os.ReadFile(filepath.Join(dir, "certificates", "a b.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))

	_, err = store.Upload(context.Background(), "certificates", "a b.jpg", []byte("other"))
	assert.Error(t, err, "objects are immutable")
}

func TestLocalStorageUploadStaysInsideRoot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://cdn")
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), "../../etc", "x.jpg", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/etc/x.jpg", url)
	_, err = os.Stat(filepath.Join(dir, "etc", "x.jpg"))
	require.NoError(t, err)
}

func TestLocalStorageHonoursCancelledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "http://cdn")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Upload(ctx, "f", "x.jpg", []byte("data"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestObjectName(t *testing.T) {
	first := ObjectName("My Certificate.PNG")
	second := ObjectName("My Certificate.PNG")
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "my-certificate-"))
	assert.True(t, strings.HasSuffix(first, ".jpg"))
	assert.True(t, strings.HasSuffix(ObjectName("%%%"), ".jpg"))
}

func TestNewCloudinaryStorageRequiresCredentials(t *testing.T) {
	_, err := NewCloudinaryStorage("", "key", "secret")
	assert.Error(t, err)
}
