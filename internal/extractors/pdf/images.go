package pdf

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/toricodesthings/patent-analysis-service/internal/extract"
)

// Images with this many colour components or more are CMYK and are skipped.
const cmykComponents = 4

var disableConfigDir sync.Once

// extractImages writes every embedded raster image of the document into dir
// as page_<n>_img_<i>.<ext>. Page numbers are 1-based, image indexes 0-based
// within a page and ordered by object number. Page thumbnails are not
// extracted. An image that cannot be decoded or written is logged and
// skipped; only a failure to read the document itself is returned.
func extractImages(ctx context.Context, pdfPath, dir string) (refs []extract.ImageRef, err error) {
	disableConfigDir.Do(api.DisableConfigDir)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("image extraction panic: %v", r)
		}
	}()

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Cmd = model.EXTRACTIMAGES

	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	for page := 1; page <= pctx.PageCount; page++ {
		objNrs := pdfcpu.ImageObjNrs(pctx, page)
		sort.Ints(objNrs)

		for idx, objNr := range objNrs {
			if err := ctx.Err(); err != nil {
				return refs, err
			}
			ref, ok, err := pageImage(pctx, page, idx, objNr, dir)
			if err != nil {
				log.Warn().Err(err).Int("page", page).Int("index", idx).Int("obj", objNr).Msg("skipping image")
				continue
			}
			if ok {
				refs = append(refs, ref)
			}
		}
	}
	return refs, nil
}

// pageImage extracts one image object. ok is false when the image is skipped
// on purpose (CMYK, unsupported filter).
func pageImage(pctx *model.Context, page, idx, objNr int, dir string) (ref extract.ImageRef, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	obj, found := pctx.Optimize.ImageObjects[objNr]
	if !found || obj == nil || obj.ImageDict == nil {
		return extract.ImageRef{}, false, fmt.Errorf("image object %d not found", objNr)
	}
	resource := obj.ResourceNames[page-1]

	stub, err := pdfcpu.ExtractImage(pctx, obj.ImageDict, false, resource, objNr, true)
	if err != nil {
		return extract.ImageRef{}, false, fmt.Errorf("inspect: %w", err)
	}
	if stub == nil {
		return extract.ImageRef{}, false, nil
	}
	if stub.Comp >= cmykComponents {
		log.Debug().Int("page", page).Int("index", idx).Int("components", stub.Comp).Msg("skipping CMYK image")
		return extract.ImageRef{}, false, nil
	}

	img, err := pdfcpu.ExtractImage(pctx, obj.ImageDict, false, resource, objNr, false)
	if err != nil {
		return extract.ImageRef{}, false, fmt.Errorf("decode: %w", err)
	}
	if img == nil || img.Reader == nil {
		log.Debug().Int("page", page).Int("index", idx).Str("filter", stub.Filter).Msg("skipping image with unsupported filter")
		return extract.ImageRef{}, false, nil
	}

	ref, err = saveImage(img, page, idx, dir)
	if err != nil {
		return extract.ImageRef{}, false, err
	}
	ref.Width, ref.Height, ref.Components = stub.Width, stub.Height, stub.Comp
	return ref, true, nil
}

func saveImage(img *model.Image, page, idx int, dir string) (extract.ImageRef, error) {
	ext := strings.ToLower(strings.TrimPrefix(img.FileType, "."))
	if ext == "" {
		ext = "png"
	}
	path := filepath.Join(dir, fmt.Sprintf("page_%d_img_%d.%s", page, idx, ext))

	out, err := os.Create(path)
	if err != nil {
		return extract.ImageRef{}, fmt.Errorf("create: %w", err)
	}
	if _, err := io.Copy(out, img); err != nil {
		out.Close()
		_ = os.Remove(path)
		return extract.ImageRef{}, fmt.Errorf("write: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return extract.ImageRef{}, fmt.Errorf("close: %w", err)
	}

	return extract.ImageRef{
		PageNumber: page,
		Index:      idx,
		Path:       path,
		Format:     ext,
	}, nil
}
