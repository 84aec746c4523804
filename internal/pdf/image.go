package pdf

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// fitImage downscales a PNG so its longest side is at most maxPixels.
// Images already within bounds are returned untouched.
func fitImage(png []byte, maxPixels int) ([]byte, error) {
	if maxPixels <= 0 {
		return png, nil
	}
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= maxPixels && b.Dy() <= maxPixels {
		return png, nil
	}
	fitted := imaging.Fit(img, maxPixels, maxPixels, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode rendered page: %w", err)
	}
	return buf.Bytes(), nil
}
