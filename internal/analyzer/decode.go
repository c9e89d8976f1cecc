package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImagePixels caps the decoded size of an upload at 25 megapixels.
const DefaultMaxImagePixels = 25_000_000

var errImageTooLarge = errors.New("image exceeds pixel limit")

// decodeImage reads the header of data, rejects images larger than maxPixels,
// then fully decodes it and returns its pixel size.
func decodeImage(data []byte, maxPixels int64) (width, height int, err error) {
	if len(data) == 0 {
		return 0, 0, errors.New("empty image")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, errors.New("image has no pixels")
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return 0, 0, fmt.Errorf("%w: %dx%d", errImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}
