package extract

type Job struct {
	LocalPath string
	FileName  string
	MIMEType  string
	FileSize  int64

	// ImageDir receives extracted images. Empty disables image extraction.
	ImageDir string
}

type Document struct {
	Text      string       `json:"text"`
	Method    string       `json:"method"`
	PageCount int          `json:"pageCount"`
	Pages     []PageResult `json:"pages,omitempty"`
	Images    []ImageRef   `json:"images,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
	WordCount int          `json:"wordCount"`
	CharCount int          `json:"charCount"`
}

type PageResult struct {
	PageNumber int    `json:"pageNumber"`
	Text       string `json:"text"`
	WordCount  int    `json:"wordCount"`
}

// ImageRef points at an embedded raster image written to Job.ImageDir.
type ImageRef struct {
	PageNumber int    `json:"pageNumber"`
	Index      int    `json:"index"`
	Path       string `json:"path"`
	Format     string `json:"format"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Components int    `json:"components"`
}

func BuildCounts(text string) (wordCount int, charCount int) {
	charCount = len([]rune(text))
	wordCount = 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			if inWord {
				wordCount++
				inWord = false
			}
			continue
		}
		inWord = true
	}
	if inWord {
		wordCount++
	}
	return
}
