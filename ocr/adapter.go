package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/tiff"
)

// InputOption mutates an OCR input.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithRegion sets the recognition region on the OCR input.
func WithRegion(region Region) InputOption {
	return func(in *Input) {
		if region.IsEmpty() {
			in.Region = nil
			return
		}
		in.Region = &region
	}
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// InputFromImage encodes a rendered page as PNG. The ID is derived from the
// page index so results can be matched back to pages.
func InputFromImage(pageIndex int, img image.Image, opts ...InputOption) (Input, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Input{}, fmt.Errorf("encode page %d raster: %w", pageIndex, err)
	}
	return newInput(pageIndex, buf.Bytes(), ImageFormatPNG, opts), nil
}

// InputFromBytes wraps an already encoded page raster. PNG, JPEG and TIFF
// are accepted.
func InputFromBytes(pageIndex int, data []byte, opts ...InputOption) (Input, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Input{}, fmt.Errorf("page %d raster: %w", pageIndex, err)
	}
	var f ImageFormat
	switch format {
	case "png":
		f = ImageFormatPNG
	case "jpeg":
		f = ImageFormatJPEG
	case "tiff":
		f = ImageFormatTIFF
	default:
		return Input{}, fmt.Errorf("page %d raster: unsupported format %q", pageIndex, format)
	}
	return newInput(pageIndex, data, f, opts), nil
}

func newInput(pageIndex int, data []byte, format ImageFormat, opts []InputOption) Input {
	in := Input{
		ID:        fmt.Sprintf("page-%d", pageIndex),
		Image:     data,
		Format:    format,
		PageIndex: pageIndex,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}

// ImageSize returns the pixel size of the input image.
func (in Input) ImageSize() (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Image))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
