package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/toricodesthings/patent-analysis-service/internal/extract"
)

// Resolver picks the extractor for a stored upload.
type Resolver interface {
	Resolve(mimeType, extension string) (extract.Extractor, error)
}

// StructureRecognizer maps an image file to a structure string.
type StructureRecognizer interface {
	Recognize(path string) (smiles string, ok bool, err error)
}

type Options struct {
	FieldMaxChars int
	ScratchDir    string
}

type Analyzer struct {
	resolver   Resolver
	recognizer StructureRecognizer
	opts       Options
}

func NewAnalyzer(resolver Resolver, recognizer StructureRecognizer, opts Options) *Analyzer {
	if opts.FieldMaxChars <= 0 {
		opts.FieldMaxChars = DefaultFieldMaxChars
	}
	return &Analyzer{resolver: resolver, recognizer: recognizer, opts: opts}
}

// Analyze reads the document at path and produces the full analysis. Unreadable
// pages and images are skipped; only a missing file, an unsupported type or a
// cancelled context fail the run.
func (a *Analyzer) Analyze(ctx context.Context, path, mimeType string) (Result, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("open document: %w", err)
	}

	ex, err := a.resolver.Resolve(mimeType, filepath.Ext(path))
	if err != nil {
		return Result{}, err
	}

	imageDir, err := os.MkdirTemp(a.opts.ScratchDir, "patent-images-*")
	if err != nil {
		log.Warn().Err(err).Msg("image directory unavailable, skipping image extraction")
		imageDir = ""
	} else {
		defer os.RemoveAll(imageDir)
	}

	doc, err := ex.Extract(ctx, extract.Job{
		LocalPath: path,
		FileName:  filepath.Base(path),
		MIMEType:  mimeType,
		FileSize:  st.Size(),
		ImageDir:  imageDir,
	})
	if err != nil {
		return Result{}, err
	}
	for _, w := range doc.Warnings {
		log.Debug().Str("extractor", ex.Name()).Msg(w)
	}
	log.Info().Int("pages", doc.PageCount).Int("chars", doc.CharCount).Str("method", doc.Method).Msg("text extracted")

	res := Result{
		ChemicalFormulas: ExtractFormulas(doc.Text),
		SMILESStructures: make([]string, 0),
		PatentElements:   ExtractFields(doc.Text, a.opts.FieldMaxChars),
		ImagesExtracted:  len(doc.Images),
		PagesProcessed:   doc.PageCount,
	}

	for _, img := range doc.Images {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		smiles, ok, err := a.recognizer.Recognize(img.Path)
		if err != nil {
			log.Warn().Err(err).Int("page", img.PageNumber).Int("index", img.Index).Msg("structure recognition failed")
			continue
		}
		if ok {
			res.SMILESStructures = append(res.SMILESStructures, smiles)
		}
	}
	log.Info().
		Int("formulas", len(res.ChemicalFormulas)).
		Int("images", res.ImagesExtracted).
		Int("structures", len(res.SMILESStructures)).
		Msg("document analyzed")

	Summarize(&res)
	return res, nil
}
