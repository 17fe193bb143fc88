package extract

import "context"

// Extractor is implemented by every document-type handler. Extract returns an
// error only when the document cannot be processed at all; partial failures
// degrade to empty values and are reported in Document.Warnings.
type Extractor interface {
	Extract(ctx context.Context, job Job) (Document, error)
	SupportedTypes() []string
	SupportedExtensions() []string
	Name() string
	MaxFileSize() int64
}
