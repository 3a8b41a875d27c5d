package compose

import (
	"fmt"
	"os"

	"handout-maker/backend/internal/layout"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	pctx, err := pdfapi.ReadContext(f, model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	return pctx.PageCount, nil
}

// PageSizes returns the visible size of every page in the PDF at path.
func PageSizes(path string) ([]layout.Size, error) {
	pctx, err := readContext(path)
	if err != nil {
		return nil, err
	}

	sizes := make([]layout.Size, 0, pctx.PageCount)
	for nr := 1; nr <= pctx.PageCount; nr++ {
		p, err := loadPage(pctx, nr)
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, p.size)
	}
	return sizes, nil
}
