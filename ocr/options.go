package ocr

import "strconv"

// Tesseract variable names set by the options below. Engines other than
// Tesseract ignore them.
const (
	varPageSegMode = "tessedit_pageseg_mode"
	varWhitelist   = "tessedit_char_whitelist"
)

// MaxPSM is the highest Tesseract page segmentation mode.
const MaxPSM = 13

func withVariable(key, value string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata[key] = value
	}
}

// WithTesseractPSM sets the page segmentation mode. The mode decides how
// recognized lines are linearized, so it changes the text leaf. Values
// outside 0..MaxPSM are ignored.
func WithTesseractPSM(mode int) InputOption {
	if mode < 0 || mode > MaxPSM {
		return func(*Input) {}
	}
	return withVariable(varPageSegMode, strconv.Itoa(mode))
}

// WithTesseractWhitelist restricts recognition to chars. An empty list
// leaves recognition unrestricted.
func WithTesseractWhitelist(chars string) InputOption {
	if chars == "" {
		return func(*Input) {}
	}
	return withVariable(varWhitelist, chars)
}
