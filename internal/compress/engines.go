package compress

import (
	"context"
	"fmt"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"handout-maker/backend/internal/runner"
)

// Ghostscript rewrites documents through gs's pdfwrite device.
type Ghostscript struct {
	Runner runner.Runner
	Binary string
	Preset string // PDFSETTINGS name without the slash, e.g. "ebook"
}

// Args returns the gs command line for in and out.
func (g *Ghostscript) Args(in, out string) []string {
	preset := g.Preset
	if preset == "" {
		preset = "ebook"
	}
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=/" + preset,
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dSAFER",
		"-sOutputFile=" + out,
		in,
	}
}

func (g *Ghostscript) Compress(ctx context.Context, in, out string) error {
	res, err := g.Runner.Run(ctx, g.Binary, g.Args(in, out)...)
	if err != nil {
		if diag := res.Diagnostic(); diag != "" {
			return fmt.Errorf("%w: %s (%v)", ErrEngine, diag, err)
		}
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return nil
}

// Optimizer compresses in-process with pdfcpu's optimize pass, which
// deduplicates fonts, images and content streams.
type Optimizer struct{}

func (Optimizer) Compress(ctx context.Context, in, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pdfapi.OptimizeFile(in, out, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return nil
}
