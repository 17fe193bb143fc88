package pdf

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// PopplerConfig controls the pdfinfo/pdftotext fallback used when the
// native parser cannot read a document.
type PopplerConfig struct {
	Enabled          bool
	PDFInfoBinary    string
	PDFToTextBinary  string
	PDFInfoTimeout   time.Duration
	PDFToTextTimeout time.Duration
}

func (c PopplerConfig) withDefaults() PopplerConfig {
	out := c
	if out.PDFInfoBinary == "" {
		out.PDFInfoBinary = "pdfinfo"
	}
	if out.PDFToTextBinary == "" {
		out.PDFToTextBinary = "pdftotext"
	}
	if out.PDFInfoTimeout <= 0 {
		out.PDFInfoTimeout = 5 * time.Second
	}
	if out.PDFToTextTimeout <= 0 {
		out.PDFToTextTimeout = 30 * time.Second
	}
	return out
}

var pageCountRegex = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// popplerPages extracts per-page text by running pdfinfo once and pdftotext per page.
func popplerPages(ctx context.Context, pdfPath string, cfg PopplerConfig) ([]string, error) {
	cfg = cfg.withDefaults()

	total, err := popplerPageCount(ctx, pdfPath, cfg)
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, total)
	for page := 1; page <= total; page++ {
		text, err := popplerPageText(ctx, pdfPath, page, cfg)
		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("pdftotext page failed")
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func popplerPageCount(ctx context.Context, pdfPath string, cfg PopplerConfig) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.PDFInfoTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.PDFInfoBinary, pdfPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, classifyPopplerErr(ctx, "pdfinfo", err, stderr.String(), 0)
	}
	return parsePages(stdout.String())
}

// popplerPageText output is capped at 10 MiB per page.
func popplerPageText(ctx context.Context, pdfPath string, page int, cfg PopplerConfig) (string, error) {
	const maxPerPageBytes = 10<<20 + 1

	ctx, cancel := context.WithTimeout(ctx, cfg.PDFToTextTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx,
		cfg.PDFToTextBinary,
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-nopgbrk",
		"-enc", "UTF-8",
		pdfPath,
		"-",
	)

	text, stderrStr, err := runCommandCaptureLimited(cmd, maxPerPageBytes)
	if err != nil {
		return "", classifyPopplerErr(ctx, "pdftotext", err, stderrStr, page)
	}
	return text, nil
}

func parsePages(pdfinfoOut string) (int, error) {
	matches := pageCountRegex.FindStringSubmatch(pdfinfoOut)
	if len(matches) == 2 {
		n, err := strconv.Atoi(matches[1])
		if err != nil {
			return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
		}
		return validatePages(n)
	}

	// Some builds pad or reorder fields.
	sc := bufio.NewScanner(strings.NewReader(pdfinfoOut))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(strings.ToLower(line), "pages:") {
			fields := strings.Fields(line[len("Pages:"):])
			if len(fields) == 0 {
				break
			}
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
			}
			return validatePages(n)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("pdfinfo: scan failed: %w", err)
	}

	return 0, fmt.Errorf("pdfinfo: pages field not found in output")
}

func validatePages(count int) (int, error) {
	if count < 0 || count > 50000 {
		return 0, fmt.Errorf("pdfinfo: unreasonable page count: %d", count)
	}
	return count, nil
}

var errOutputLimit = errors.New("output exceeds limit")

func runCommandCaptureLimited(cmd *exec.Cmd, maxBytes int64) (stdoutText string, stderrText string, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start: %w", err)
	}

	outBytes, readErr := io.ReadAll(io.LimitReader(stdoutPipe, maxBytes))
	if readErr != nil || int64(len(outBytes)) >= maxBytes {
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()
	stderrStr := strings.TrimSpace(stderr.String())

	if readErr != nil {
		return "", stderrStr, fmt.Errorf("read stdout: %w", readErr)
	}
	if int64(len(outBytes)) >= maxBytes {
		return "", stderrStr, errOutputLimit
	}
	if waitErr != nil {
		return "", stderrStr, waitErr
	}
	return string(outBytes), stderrStr, nil
}

func classifyPopplerErr(ctx context.Context, tool string, err error, stderr string, page int) error {
	where := tool
	if page > 0 {
		where = fmt.Sprintf("%s page %d", tool, page)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timeout", where)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: binary not installed: %w", tool, err)
	}
	if errors.Is(err, errOutputLimit) {
		return fmt.Errorf("%s: extracted text too large", where)
	}

	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s failed: %w", where, err)
	}

	log.Debug().Str("tool", tool).Int("page", page).Str("stderr", truncate(stderr, 500)).Msg("poppler error output")

	switch {
	case containsAny(stderr, "Incorrect password"):
		return fmt.Errorf("PDF is password protected")
	case containsAny(stderr, "PDF file is damaged", "Syntax Error", "Couldn't find trailer dictionary", "May not be a PDF file"):
		return fmt.Errorf("PDF appears to be damaged or invalid")
	case strings.Contains(stderr, "I/O Error") && strings.Contains(stderr, "Couldn't open file"):
		return fmt.Errorf("unable to open PDF")
	}
	return fmt.Errorf("%s failed: %s", where, truncate(stderr, 200))
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
