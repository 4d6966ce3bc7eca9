package fetch

import (
	"bytes"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DecodeError wraps a failure to decode fetched tile bytes. Decode failures
// are never retried: fetching the same bytes again cannot change them.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("failed to decode %s tile: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("failed to decode tile: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode turns raw tile bytes into an image using whatever decoder matches
// the payload (JPEG, PNG, WebP or TIFF).
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("empty tile payload")}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	return img, nil
}
