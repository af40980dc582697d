// Package imaging normalizes uploaded images into the canonical form the
// generation backend accepts: RGBA pixels re-encoded as base64 PNG.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/sync/errgroup"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrInvalidImage = errors.New("invalid image")

// decodeConcurrency bounds parallel frame decoding.
const decodeConcurrency = 8

// DecodeToBase64 decodes raw upload bytes in any registered format,
// coerces the pixels to RGBA and re-encodes as base64 PNG.
func DecodeToBase64(raw []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	canon := image.NewRGBA(img.Bounds())
	draw.Draw(canon, canon.Bounds(), img, img.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canon); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeFrames decodes an ordered set of video frames concurrently while
// preserving their order. The first failure aborts the batch and names the
// offending frame with a 1-based index.
func DecodeFrames(ctx context.Context, raws [][]byte) ([]string, error) {
	encoded := make([]string, len(raws))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(decodeConcurrency)
	for i, raw := range raws {
		i, raw := i, raw
		g.Go(func() error {
			b64, err := DecodeToBase64(raw)
			if err != nil {
				return fmt.Errorf("error processing frame %d: %w", i+1, err)
			}
			encoded[i] = b64
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return encoded, nil
}
