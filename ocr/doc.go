// Package ocr defines the contract for plugging OCR engines (for example,
// Tesseract) into text extraction for pages that carry no text layer.
// Pages are rendered by a caller supplied Rasterizer and recognized words
// come back in pixel coordinates with the origin top-left.
package ocr
