package storage

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // register webp decoding
)

// Supported storage drivers.
const (
	DriverLocal      = "local"
	DriverCloudinary = "cloudinary"
)

// ImageOptions bound the normalised output.
type ImageOptions struct {
	MaxWidth    int
	MaxHeight   int
	JPEGQuality int
}

// NormalizeImage decodes an uploaded image, applies its EXIF orientation, fits it
// inside the configured box and re-encodes it as JPEG.
func NormalizeImage(data []byte, opts ImageOptions) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	if (opts.MaxWidth > 0 && bounds.Dx() > opts.MaxWidth) || (opts.MaxHeight > 0 && bounds.Dy() > opts.MaxHeight) {
		maxW, maxH := opts.MaxWidth, opts.MaxHeight
		if maxW <= 0 {
			maxW = bounds.Dx()
		}
		if maxH <= 0 {
			maxH = bounds.Dy()
		}
		img = imaging.Fit(img, maxW, maxH, imaging.Lanczos)
	}
	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectName returns a fresh object name that keeps a readable slug of the original file name.
func ObjectName(original string) string {
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(original, "\\", "/")), path.Ext(original))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	if slug == "" || slug == "." {
		return uuid.NewString() + ".jpg"
	}
	return slug + "-" + uuid.NewString() + ".jpg"
}
