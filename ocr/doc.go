// Package ocr defines the engine contract used to read text out of raster
// input. Engines are injected by the caller; the package keeps no global
// default. ocr/tesseract provides the gosseract-backed implementation.
package ocr
