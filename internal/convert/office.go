// Package convert turns uploaded slide decks into PDF with headless LibreOffice.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"

	"handout-maker/backend/internal/fileutil"
	"handout-maker/backend/internal/runner"
)

var (
	ErrConversionFailed = errors.New("document conversion failed")
	ErrOutputNotFound   = errors.New("converted document not found")
)

// Office converts documents by invoking soffice.
type Office struct {
	Runner runner.Runner
	Binary string
	Logger *slog.Logger

	sem *semaphore.Weighted
}

// NewOffice returns a converter allowing at most maxConcurrent soffice processes.
func NewOffice(r runner.Runner, binary string, maxConcurrent int, logger *slog.Logger) *Office {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Office{
		Runner: r,
		Binary: binary,
		Logger: logger,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Convert writes a PDF rendition of input into outDir and returns its path.
// PDF input is copied through without invoking the converter.
func (o *Office) Convert(ctx context.Context, input, outDir string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	if strings.EqualFold(filepath.Ext(input), ".pdf") {
		dst := filepath.Join(outDir, stem+".converted.pdf")
		if err := fileutil.CopyFile(input, dst); err != nil {
			return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
		}
		return dst, nil
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	defer o.sem.Release(1)

	profile, err := filepath.Abs(filepath.Join(outDir, ".soffice-profile"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	res, err := o.Runner.Run(ctx, o.Binary,
		"--headless",
		"--norestore",
		"--nolockcheck",
		"-env:UserInstallation=file://"+filepath.ToSlash(profile),
		"--convert-to", "pdf",
		"--outdir", outDir,
		input,
	)
	if err != nil {
		if diag := res.Diagnostic(); diag != "" {
			return "", fmt.Errorf("%w: %s (%v)", ErrConversionFailed, diag, err)
		}
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	// soffice exits 0 even when the import filter rejects the file.
	if strings.Contains(res.Stderr, "Error:") {
		return "", fmt.Errorf("%w: %s", ErrConversionFailed, strings.TrimSpace(res.Stderr))
	}

	out, err := locateOutput(outDir, stem)
	if err != nil {
		if diag := res.Diagnostic(); diag != "" {
			return "", fmt.Errorf("%w: %s", err, diag)
		}
		return "", err
	}
	o.Logger.Debug("converter output located", "file", filepath.Base(out))
	return out, nil
}

// locateOutput checks the names soffice is known to produce, then falls back
// to the most recently modified PDF in outDir.
func locateOutput(outDir, stem string) (string, error) {
	candidates := []string{
		stem + ".pdf",
		stem + ".PDF",
		strings.ToLower(stem) + ".pdf",
		strings.ReplaceAll(stem, " ", "_") + ".pdf",
	}
	for _, name := range candidates {
		p := filepath.Join(outDir, name)
		if fileutil.NonEmpty(p) {
			return p, nil
		}
	}

	p, ok, err := fileutil.NewestWithExt(outDir, ".pdf")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputNotFound, err)
	}
	if !ok || !fileutil.NonEmpty(p) {
		return "", ErrOutputNotFound
	}
	return p, nil
}
