package extract

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var ErrTooLarge = errors.New("file too large")

// SizeLimitError reports an upload that crossed the byte cap.
type SizeLimitError struct {
	Limit int64
}

func (e *SizeLimitError) Error() string {
	if e.Limit >= 1<<20 && e.Limit%(1<<20) == 0 {
		return fmt.Sprintf("file exceeds %dMB limit", e.Limit/(1<<20))
	}
	return fmt.Sprintf("file exceeds %d byte limit", e.Limit)
}

func (e *SizeLimitError) Is(target error) bool { return target == ErrTooLarge }

// ScratchFile is an upload stored in its own private temp directory.
type ScratchFile struct {
	Dir      string
	Path     string
	MIMEType string
	Size     int64
}

// Cleanup removes the file and its directory. Errors are ignored.
func (s ScratchFile) Cleanup() {
	if s.Dir != "" {
		_ = os.RemoveAll(s.Dir)
	}
}

// SaveToScratch streams body into a new temp directory under baseDir
// (os.TempDir when empty), enforcing maxBytes. On any error nothing is left
// on disk.
func SaveToScratch(body io.Reader, baseDir, fileName string, maxBytes int64) (ScratchFile, error) {
	tmpDir, err := os.MkdirTemp(baseDir, "patent-*")
	if err != nil {
		return ScratchFile{}, fmt.Errorf("temp dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
	if ext == "" {
		ext = ".bin"
	}
	outPath := filepath.Join(tmpDir, "upload"+ext)

	n, err := writeLimited(outPath, body, maxBytes)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return ScratchFile{}, err
	}

	return ScratchFile{
		Dir:      tmpDir,
		Path:     outPath,
		MIMEType: sniffMIMEType(outPath),
		Size:     n,
	}, nil
}

func writeLimited(path string, body io.Reader, maxBytes int64) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	lr := &io.LimitedReader{R: body, N: maxBytes + 1}
	n, err := io.Copy(f, lr)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	if n > maxBytes {
		return n, &SizeLimitError{Limit: maxBytes}
	}

	if err := f.Sync(); err != nil {
		return n, fmt.Errorf("sync: %w", err)
	}
	return n, nil
}

func sniffMIMEType(path string) string {
	m, err := mimetype.DetectFile(path)
	if err == nil && m != nil {
		return strings.ToLower(strings.TrimSpace(m.String()))
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n <= 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(http.DetectContentType(buf[:n])))
}

// IsMIME reports whether detected (possibly carrying parameters) equals want.
func IsMIME(detected, want string) bool {
	mt := strings.ToLower(strings.TrimSpace(detected))
	if i := strings.Index(mt, ";"); i > 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == strings.ToLower(want)
}
