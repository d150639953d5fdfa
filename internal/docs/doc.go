// Package docs wraps the external tools used to read input documents:
// pdftotext and tesseract for text, and ImageMagick, Ghostscript or pdftoppm
// for rendering PDFs as images. Commands run through a Runner so tests can
// substitute scripted output.
package docs
