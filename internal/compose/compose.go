// Package compose renders layout plans into PDF documents with pdfcpu.
//
// Each source page is wrapped into a form XObject carrying its content and
// resources; output pages draw those forms with a single scale+translate
// matrix per placement. The source file is read, never written.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"handout-maker/backend/internal/layout"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	ErrReadSource   = errors.New("cannot read source document")
	ErrPageGeometry = errors.New("cannot determine page geometry")
	ErrWriteOutput  = errors.New("cannot write composed document")
)

// Composer packs several source pages onto each output page.
type Composer struct {
	Canvas layout.Canvas
}

// New returns a Composer drawing onto canvas.
func New(canvas layout.Canvas) *Composer {
	return &Composer{Canvas: canvas}
}

type sourcePage struct {
	nr        int
	dict      types.Dict
	box       *types.Rectangle
	rotate    int
	resources types.Dict
	size      layout.Size
}

// Compose writes the n-up rendition of src to dst and returns the number of output pages.
func (c *Composer) Compose(ctx context.Context, src, dst string, slidesPerPage int) (int, error) {
	pctx, err := readContext(src)
	if err != nil {
		return 0, err
	}

	pages := make([]sourcePage, 0, pctx.PageCount)
	sizes := make([]layout.Size, 0, pctx.PageCount)
	for nr := 1; nr <= pctx.PageCount; nr++ {
		p, err := loadPage(pctx, nr)
		if err != nil {
			return 0, err
		}
		pages = append(pages, p)
		sizes = append(sizes, p.size)
	}

	sheets, err := layout.Plan(sizes, slidesPerPage, c.Canvas)
	if err != nil {
		return 0, err
	}

	forms := make([]*types.IndirectRef, len(pages))
	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		forms[i], err = formForPage(pctx, p)
		if err != nil {
			return 0, fmt.Errorf("page %d: %w", p.nr, err)
		}
	}

	if err := c.replacePageTree(pctx, sheets, forms); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := writeContext(pctx, dst); err != nil {
		return 0, err
	}
	return len(sheets), nil
}

func readContext(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	defer f.Close()

	pctx, err := pdfapi.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	if pctx.PageCount == 0 {
		return nil, layout.ErrNoPages
	}
	return pctx, nil
}

func loadPage(pctx *model.Context, nr int) (sourcePage, error) {
	d, _, inh, err := pctx.PageDict(nr, true)
	if err != nil {
		return sourcePage{}, fmt.Errorf("%w: page %d: %v", ErrPageGeometry, nr, err)
	}
	if d == nil || inh == nil {
		return sourcePage{}, fmt.Errorf("%w: page %d missing", ErrPageGeometry, nr)
	}

	box := inh.CropBox
	if box == nil {
		box = inh.MediaBox
	}
	if box == nil {
		return sourcePage{}, fmt.Errorf("%w: page %d has no media box", ErrPageGeometry, nr)
	}

	res := inh.Resources
	if res == nil {
		if o, found := d.Find("Resources"); found {
			if res, err = pctx.DereferenceDict(o); err != nil {
				return sourcePage{}, fmt.Errorf("%w: page %d resources: %v", ErrPageGeometry, nr, err)
			}
		}
	}

	rot := normalizeRotation(inh.Rotate)
	size := layout.Size{Width: box.Width(), Height: box.Height()}
	if rot == 90 || rot == 270 {
		size.Width, size.Height = size.Height, size.Width
	}

	return sourcePage{
		nr:        nr,
		dict:      d,
		box:       box,
		rotate:    rot,
		resources: res,
		size:      size,
	}, nil
}

func normalizeRotation(rot int) int {
	rot %= 360
	if rot < 0 {
		rot += 360
	}
	return rot
}

// formForPage copies a page's content into a new form XObject whose bbox
// starts at the origin and matches the visible (rotated) page size.
func formForPage(pctx *model.Context, p sourcePage) (*types.IndirectRef, error) {
	var content []byte
	if _, found := p.dict.Find("Contents"); found {
		var err error
		if content, err = pctx.PageContent(p.dict, p.nr); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.WriteString("q ")
	if p.rotate != 0 {
		// The rotation matrix is sized by the visible page, i.e. after the 90/270 swap.
		buf.Write(model.ContentBytesForPageRotation(p.rotate, p.size.Width, p.size.Height))
	}
	fmt.Fprintf(&buf, "1 0 0 1 %.5f %.5f cm ", -p.box.LL.X, -p.box.LL.Y)
	buf.Write(content)
	buf.WriteString(" Q")

	sd, err := pctx.NewStreamDictForBuf(buf.Bytes())
	if err != nil {
		return nil, err
	}
	sd.Dict["Type"] = types.Name("XObject")
	sd.Dict["Subtype"] = types.Name("Form")
	sd.Dict["BBox"] = types.RectForWidthAndHeight(0, 0, p.size.Width, p.size.Height).Array()
	if p.resources != nil {
		sd.Dict["Resources"] = p.resources
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}

	return pctx.IndRefForNewObject(*sd)
}

// replacePageTree swaps the document's page tree for one page per sheet.
// Catalog entries pointing into the old tree are dropped.
func (c *Composer) replacePageTree(pctx *model.Context, sheets []layout.Sheet, forms []*types.IndirectRef) error {
	pagesDict := types.Dict{
		"Type":  types.Name("Pages"),
		"Count": types.Integer(len(sheets)),
	}
	pagesRef, err := pctx.IndRefForNewObject(pagesDict)
	if err != nil {
		return err
	}

	mediaBox := types.RectForWidthAndHeight(0, 0, c.Canvas.Width, c.Canvas.Height)
	kids := make(types.Array, 0, len(sheets))

	for _, sheet := range sheets {
		xobjects := types.Dict{}
		var buf bytes.Buffer
		for i, pl := range sheet.Placements {
			name := fmt.Sprintf("Fm%d", i)
			xobjects[name] = *forms[pl.Source]
			fmt.Fprintf(&buf, "q %.5f 0 0 %.5f %.5f %.5f cm /%s Do Q\n",
				pl.Scale, pl.Scale, pl.Frame.X, pl.Frame.Y, name)
		}

		sd, err := pctx.NewStreamDictForBuf(buf.Bytes())
		if err != nil {
			return err
		}
		if err := sd.Encode(); err != nil {
			return err
		}
		contentRef, err := pctx.IndRefForNewObject(*sd)
		if err != nil {
			return err
		}

		pageRef, err := pctx.IndRefForNewObject(types.Dict{
			"Type":      types.Name("Page"),
			"Parent":    *pagesRef,
			"MediaBox":  mediaBox.Array(),
			"Resources": types.Dict{"XObject": xobjects},
			"Contents":  *contentRef,
		})
		if err != nil {
			return err
		}
		kids = append(kids, *pageRef)
	}
	pagesDict["Kids"] = kids

	root, err := pctx.Catalog()
	if err != nil {
		return err
	}
	root["Pages"] = *pagesRef
	for _, k := range []string{"Outlines", "Dests", "PageLabels", "OpenAction", "StructTreeRoot"} {
		delete(root, k)
	}
	pctx.PageCount = len(sheets)
	return nil
}

func writeContext(pctx *model.Context, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	if err := pdfapi.WriteContext(pctx, out); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}
