// Package ocr is the contract between the region extractor and optical
// character recognition engines. Page rasters go in as encoded images and
// come back as blocks, lines and words with pixel bounds; extract.FromOCR
// turns those into derived regions.
package ocr
