// Package compress shrinks PDFs on a best-effort basis.
//
// An engine failure never fails the stage: the input is copied to the output
// path instead. Only a failing copy is reported to the caller.
package compress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"handout-maker/backend/internal/fileutil"
)

var (
	ErrEngine       = errors.New("compression engine failed")
	ErrFallbackCopy = errors.New("cannot write uncompressed copy")
	ErrSameFile     = errors.New("compression input and output are the same path")
)

// Engine writes a compressed rendition of in to out.
type Engine interface {
	Compress(ctx context.Context, in, out string) error
}

// Outcome describes what the stage left at the output path.
type Outcome struct {
	Compressed  bool
	Reason      string // why the fallback copy was used
	InputBytes  int64
	OutputBytes int64
}

// Stage runs an Engine with a byte-identical copy as fallback.
// A nil Engine always copies.
type Stage struct {
	Engine Engine
	Logger *slog.Logger
}

// NewStage returns a Stage for engine.
func NewStage(engine Engine, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{Engine: engine, Logger: logger}
}

// Compress leaves exactly one valid document at output. input is never modified.
func (s *Stage) Compress(ctx context.Context, input, output string) (Outcome, error) {
	if input == output {
		return Outcome{}, ErrSameFile
	}
	in, err := os.Stat(input)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrFallbackCopy, err)
	}
	outcome := Outcome{InputBytes: in.Size()}

	reason := "compression disabled"
	if s.Engine != nil {
		err := s.Engine.Compress(ctx, input, output)
		switch {
		case err != nil:
			reason = err.Error()
		case !fileutil.NonEmpty(output):
			reason = "engine produced no output"
		default:
			out, statErr := os.Stat(output)
			if statErr != nil || out.Size() > in.Size() {
				reason = "compressed output is larger than input"
				break
			}
			// An engine can exit cleanly and still leave a truncated file.
			if err := pdfapi.ValidateFile(output, model.NewDefaultConfiguration()); err != nil {
				reason = fmt.Sprintf("engine output is not a valid PDF: %v", err)
				break
			}
			outcome.Compressed = true
			outcome.OutputBytes = out.Size()
			return outcome, nil
		}
		s.Logger.Warn("compression skipped, using uncompressed copy", "reason", reason)
	}

	if err := fileutil.Remove(output); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrFallbackCopy, err)
	}
	if err := fileutil.CopyFile(input, output); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrFallbackCopy, err)
	}
	outcome.Reason = reason
	outcome.OutputBytes = in.Size()
	return outcome, nil
}
