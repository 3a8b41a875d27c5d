// Package pdftest builds small PDF decks for tests without external tools.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Page describes one page of a built document.
type Page struct {
	Width, Height float64
	Rotate        int
	CropBox       []float64 // llx lly urx ury; nil means the media box
}

// Box returns the visible box of p before rotation.
func (p Page) Box() [4]float64 {
	if len(p.CropBox) == 4 {
		return [4]float64{p.CropBox[0], p.CropBox[1], p.CropBox[2], p.CropBox[3]}
	}
	return [4]float64{0, 0, p.Width, p.Height}
}

// Marker is the comment that opens page i's content stream (1-based), so
// tests can tell which source a composed form was copied from.
func Marker(i int) string {
	return fmt.Sprintf("%%slide %d", i)
}

// Deck returns a PDF with n pages of size w x h.
func Deck(n int, w, h float64) []byte {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Width: w, Height: h}
	}
	return Build(pages)
}

// Build returns a PDF with the given pages. Each page fills a rectangle inside
// its visible box so the content stream is never empty.
func Build(pages []Page) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	var kids bytes.Buffer
	for i := range pages {
		fmt.Fprintf(&kids, "%d 0 R ", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [ %s] /Count %d >>", kids.String(), len(pages)))

	for i, p := range pages {
		var extra string
		if p.Rotate != 0 {
			extra += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		if len(p.CropBox) == 4 {
			extra += fmt.Sprintf(" /CropBox [%g %g %g %g]", p.CropBox[0], p.CropBox[1], p.CropBox[2], p.CropBox[3])
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g]%s /Resources << >> /Contents %d 0 R >>",
			p.Width, p.Height, extra, 4+2*i))

		b := p.Box()
		gray := float64(i%10) / 10
		stream := fmt.Sprintf("%s\nq %.1f g %g %g %g %g re f Q", Marker(i+1), gray, b[0]+10, b[1]+10, b[2]-b[0]-20, b[3]-b[1]-20)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

// WriteDeck writes a Deck into dir/name and returns the path.
func WriteDeck(t testing.TB, dir, name string, n int, w, h float64) string {
	t.Helper()
	return WritePages(t, dir, name, Deck(n, w, h))
}

// WritePages writes data into dir/name and returns the path.
func WritePages(t testing.TB, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing test deck: %v", err)
	}
	return path
}

// RotatedDeck writes a Deck and lets pdfcpu rotate every page by rotation degrees.
func RotatedDeck(t testing.TB, dir, name string, n int, w, h float64, rotation int) string {
	t.Helper()

	src := WriteDeck(t, dir, "unrotated-"+name, n, w, h)
	dst := filepath.Join(dir, name)
	if err := pdfapi.RotateFile(src, dst, rotation, nil, model.NewDefaultConfiguration()); err != nil {
		t.Fatalf("rotating test deck: %v", err)
	}
	return dst
}
