package ocr

import "strconv"

// Tesseract variable names understood by the tesseract engine.
const (
	VarPageSegMode = "tessedit_pageseg_mode"
	VarWhitelist   = "tessedit_char_whitelist"
)

func withVariable(key, value string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata[key] = value
	}
}

// WithTesseractPSM sets Tesseract's page segmentation mode. Mode 6 treats
// the raster as one block of text, 11 finds sparse text.
func WithTesseractPSM(mode int) InputOption {
	return withVariable(VarPageSegMode, strconv.Itoa(mode))
}

// WithTesseractWhitelist restricts recognition to chars.
func WithTesseractWhitelist(chars string) InputOption {
	return withVariable(VarWhitelist, chars)
}
