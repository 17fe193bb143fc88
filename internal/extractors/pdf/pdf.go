// Package pdf extracts page text and embedded raster images from PDF documents.
package pdf

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/toricodesthings/patent-analysis-service/internal/extract"
)

const (
	methodNative  = "native"
	methodPoppler = "poppler"
	methodNone    = "none"
)

type Extractor struct {
	maxBytes int64
	poppler  PopplerConfig
}

func New(maxBytes int64, poppler PopplerConfig) *Extractor {
	return &Extractor{maxBytes: maxBytes, poppler: poppler}
}

func (e *Extractor) Name() string { return "document/pdf" }

func (e *Extractor) MaxFileSize() int64 { return e.maxBytes }

func (e *Extractor) SupportedTypes() []string {
	return []string{"application/pdf"}
}

func (e *Extractor) SupportedExtensions() []string {
	return []string{".pdf"}
}

// Extract never fails on a malformed document: text extraction degrades to
// empty text with zero pages, and images that cannot be decoded are skipped
// one at a time. Only a cancelled context is returned as an error.
func (e *Extractor) Extract(ctx context.Context, job extract.Job) (extract.Document, error) {
	if err := ctx.Err(); err != nil {
		return extract.Document{}, err
	}

	doc := extract.Document{Method: methodNone}

	pages, method, warnings := e.readPages(ctx, job.LocalPath)
	doc.Warnings = append(doc.Warnings, warnings...)
	if pages != nil {
		doc.Method = method
		doc.PageCount = len(pages)
		doc.Pages = make([]extract.PageResult, 0, len(pages))
		for i, p := range pages {
			words, _ := extract.BuildCounts(p)
			doc.Pages = append(doc.Pages, extract.PageResult{PageNumber: i + 1, Text: p, WordCount: words})
		}
		doc.Text = joinPages(pages)
	}
	doc.WordCount, doc.CharCount = extract.BuildCounts(doc.Text)

	if err := ctx.Err(); err != nil {
		return doc, err
	}

	if job.ImageDir != "" {
		images, err := extractImages(ctx, job.LocalPath, job.ImageDir)
		if err != nil {
			log.Warn().Err(err).Str("file", job.FileName).Msg("image extraction failed")
			doc.Warnings = append(doc.Warnings, "images: "+err.Error())
		}
		doc.Images = images
	}

	return doc, ctx.Err()
}

func (e *Extractor) readPages(ctx context.Context, path string) ([]string, string, []string) {
	var warnings []string

	pages, err := nativePages(path)
	if err == nil {
		for i := range pages {
			pages[i] = cleanText(pages[i])
		}
		return pages, methodNative, nil
	}
	log.Warn().Err(err).Msg("native PDF text extraction failed")
	warnings = append(warnings, "text: "+err.Error())

	if !e.poppler.Enabled {
		return nil, methodNone, warnings
	}

	pages, err = popplerPages(ctx, path, e.poppler)
	if err != nil {
		log.Warn().Err(err).Msg("poppler text extraction failed")
		warnings = append(warnings, "poppler: "+err.Error())
		return nil, methodNone, warnings
	}
	for i := range pages {
		pages[i] = cleanText(pages[i])
	}
	return pages, methodPoppler, warnings
}
