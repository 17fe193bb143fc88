package extract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnsupportedType = errors.New("unsupported file type")

type Registry struct {
	byMIME      map[string]Extractor
	byExtension map[string]Extractor
	extractors  []Extractor
}

func NewRegistry() *Registry {
	return &Registry{
		byMIME:      make(map[string]Extractor),
		byExtension: make(map[string]Extractor),
		extractors:  make([]Extractor, 0),
	}
}

func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
	for _, mt := range e.SupportedTypes() {
		key := strings.ToLower(strings.TrimSpace(mt))
		if key != "" {
			r.byMIME[key] = e
		}
	}
	for _, ext := range e.SupportedExtensions() {
		key := normalizeExt(ext)
		if key != "" {
			r.byExtension[key] = e
		}
	}
}

// ForExtension resolves the extractor for a file extension such as ".pdf" or "PDF".
func (r *Registry) ForExtension(extension string) (Extractor, error) {
	if e, ok := r.byExtension[normalizeExt(extension)]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedType, extension)
}

func (r *Registry) Resolve(mimeType, extension string) (Extractor, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))

	if e, err := r.ForExtension(extension); err == nil {
		return e, nil
	}

	if e, ok := r.byMIME[mt]; ok {
		return e, nil
	}

	if i := strings.Index(mt, ";"); i > 0 {
		if e, ok := r.byMIME[strings.TrimSpace(mt[:i])]; ok {
			return e, nil
		}
	}

	return nil, fmt.Errorf("%w: no extractor registered for mime=%q extension=%q", ErrUnsupportedType, mimeType, extension)
}

// Extensions lists every registered extension, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
