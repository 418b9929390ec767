package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// GIF decoder for image.DecodeConfig and imaging.Decode
	_ "image/gif"

	"gifbot/internal/filesystem"
	"gifbot/internal/logging"

	"github.com/disintegration/imaging"
)

// ThumbnailMaxSide is the largest thumbnail edge Telegram accepts.
const ThumbnailMaxSide = 320

var errInvalidSize = errors.New("invalid image size")

// Dimensions returns the frame size of an image file.
func Dimensions(path string) (width, height int, err error) {
	if IsVipsAvailable() {
		width, height, err = vipsDimensions(path)
		if err == nil && width > 0 && height > 0 {
			return width, height, nil
		}
		logging.Debug("vips could not read %s (%v), falling back to header decode", path, err)
	}

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Debug("failed to close %s: %v", path, cerr)
		}
	}()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode header of %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, errInvalidSize
	}
	return cfg.Width, cfg.Height, nil
}

// Thumbnail renders the first frame of an image fitted inside
// maxSide x maxSide and encodes it as JPEG.
func Thumbnail(path string, maxSide int) ([]byte, error) {
	if maxSide <= 0 {
		return nil, errInvalidSize
	}

	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	thumb := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Inspector exposes Dimensions and Thumbnail as methods.
type Inspector struct{}

// Dimensions returns the frame size of the file at path.
func (Inspector) Dimensions(path string) (int, int, error) {
	return Dimensions(path)
}

// Thumbnail returns a JPEG preview of the file at path.
func (Inspector) Thumbnail(path string) ([]byte, error) {
	return Thumbnail(path, ThumbnailMaxSide)
}
