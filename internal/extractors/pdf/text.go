package pdf

import (
	"fmt"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// nativePages returns the plain text of every page, in order. Pages whose
// content cannot be decoded yield an empty string.
func nativePages(pdfPath string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, r, err := lpdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		pages = append(pages, pageText(r, i))
	}
	return pages, nil
}

func pageText(r *lpdf.Reader, num int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().Int("page", num).Interface("panic", rec).Msg("page text decode panic")
			text = ""
		}
	}()

	page := r.Page(num)
	if page.V.IsNull() {
		return ""
	}
	raw, err := page.GetPlainText(nil)
	if err != nil {
		log.Warn().Err(err).Int("page", num).Msg("failed to extract page text")
		return ""
	}
	return raw
}

// joinPages concatenates page texts, each followed by a newline.
func joinPages(pages []string) string {
	var sb strings.Builder
	for _, p := range pages {
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	return sb.String()
}

func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u00AD':
			return -1
		case '\u00A0':
			return ' '
		default:
			return r
		}
	}, text)

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	consecutiveEmpty := 0

	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			consecutiveEmpty++
			if consecutiveEmpty <= 2 {
				cleaned = append(cleaned, "")
			}
			continue
		}
		consecutiveEmpty = 0
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
