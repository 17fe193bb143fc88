// Package pdftest builds small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Colour spaces accepted by Image.
const (
	DeviceGray = "DeviceGray"
	DeviceRGB  = "DeviceRGB"
	DeviceCMYK = "DeviceCMYK"
)

// Image is a FlateDecode image XObject filled with a single colour.
// Corrupt images carry a stream that is not valid zlib data.
type Image struct {
	Width, Height int
	ColorSpace    string
	Corrupt       bool
}

// Page is one page of text lines and images, drawn in order. Thumb, when
// set, is attached as the page thumbnail and is not drawn.
type Page struct {
	Lines  []string
	Images []Image
	Thumb  *Image
}

// Build returns a PDF with one page per entry; each page shows its lines in
// Helvetica. Lines must be ASCII.
func Build(pages ...[]string) []byte {
	ps := make([]Page, len(pages))
	for i, lines := range pages {
		ps[i] = Page{Lines: lines}
	}
	return BuildPages(ps...)
}

// BuildPages is Build with images.
func BuildPages(pages ...Page) []byte {
	if len(pages) == 0 {
		pages = []Page{{Lines: []string{""}}}
	}

	// 1: catalog, 2: pages, 3: font, then per page: page, contents, images, thumb.
	pageIDs := make([]int, len(pages))
	kids := make([]string, len(pages))
	next := 4
	for i, p := range pages {
		pageIDs[i] = next
		kids[i] = fmt.Sprintf("%d 0 R", next)
		next += 2 + len(p.Images)
		if p.Thumb != nil {
			next++
		}
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	for i, p := range pages {
		contentsID := pageIDs[i] + 1

		resources := "/Font << /F1 3 0 R >>"
		if len(p.Images) > 0 {
			var xobj strings.Builder
			for j := range p.Images {
				fmt.Fprintf(&xobj, "/Im%d %d 0 R ", j, contentsID+1+j)
			}
			resources += " /XObject << " + xobj.String() + ">>"
		}
		thumb := ""
		if p.Thumb != nil {
			thumb = fmt.Sprintf(" /Thumb %d 0 R", contentsID+1+len(p.Images))
		}
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << %s >> /Contents %d 0 R%s >>",
			resources, contentsID, thumb))

		var cs strings.Builder
		cs.WriteString("BT\n/F1 12 Tf\n14 TL\n72 720 Td\n")
		for _, line := range p.Lines {
			cs.WriteString("(" + escape(line) + ") Tj\nT*\n")
		}
		cs.WriteString("ET\n")
		for j, img := range p.Images {
			fmt.Fprintf(&cs, "q %d 0 0 %d 72 %d cm /Im%d Do Q\n", img.Width, img.Height, 500-j*(img.Height+10), j)
		}
		stream := cs.String()
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream))

		for _, img := range p.Images {
			objects = append(objects, imageObject(img))
		}
		if p.Thumb != nil {
			objects = append(objects, imageObject(*p.Thumb))
		}
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// WriteFile writes Build(pages...) into a temp dir and returns its path.
func WriteFile(t testing.TB, pages ...[]string) string {
	t.Helper()
	return write(t, Build(pages...))
}

// WritePages writes BuildPages(pages...) into a temp dir and returns its path.
func WritePages(t testing.TB, pages ...Page) string {
	t.Helper()
	return write(t, BuildPages(pages...))
}

func write(t testing.TB, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func imageObject(img Image) string {
	cs := img.ColorSpace
	if cs == "" {
		cs = DeviceRGB
	}

	var data []byte
	if img.Corrupt {
		data = []byte("this stream is not zlib data")
	} else {
		raw := bytes.Repeat([]byte{0x80}, img.Width*img.Height*components(cs))
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		_, _ = zw.Write(raw)
		_ = zw.Close()
		data = z.Bytes()
	}

	return fmt.Sprintf(
		"<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /%s /BitsPerComponent 8 /Filter /FlateDecode /Length %d >>\nstream\n%s\nendstream",
		img.Width, img.Height, cs, len(data), data)
}

func components(cs string) int {
	switch cs {
	case DeviceGray:
		return 1
	case DeviceCMYK:
		return 4
	default:
		return 3
	}
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
