package job

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"handout-maker/backend/internal/compress"
	"handout-maker/backend/internal/fileutil"
)

// Converter renders an uploaded document as PDF inside outDir.
type Converter interface {
	Convert(ctx context.Context, input, outDir string) (string, error)
}

// Composer lays out slidesPerPage source pages per output page.
type Composer interface {
	Compose(ctx context.Context, src, dst string, slidesPerPage int) (int, error)
}

// Compressor shrinks in into out, falling back to a copy.
type Compressor interface {
	Compress(ctx context.Context, in, out string) (compress.Outcome, error)
}

// Pipeline runs jobs. It holds no per-job state and is safe for concurrent use.
type Pipeline struct {
	UploadRoot string
	OutputRoot string

	Converter  Converter
	Composer   Composer
	Compressor Compressor

	// CountPages reports the page count of the deliverable when composition
	// did not already provide it. Optional.
	CountPages func(path string) (int, error)

	Logger *slog.Logger

	// NewID and Remove default to uuid.NewString and fileutil.Remove.
	NewID  func() string
	Remove func(path string) error
}

const fallbackStem = "slides"

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Start validates the request, creates the job's directories and stores the
// upload. Validation failures touch nothing on disk.
func (p *Pipeline) Start(filename string, slidesPerPage int, body io.Reader) (*Job, error) {
	if err := ValidateRequest(filename, slidesPerPage); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if p.NewID != nil {
		id = p.NewID()
	}
	remove := fileutil.Remove
	if p.Remove != nil {
		remove = p.Remove
	}

	stored := fileutil.StoredName(filename, fallbackStem)
	now := time.Now()
	j := &Job{
		ID:            id,
		Filename:      filename,
		Stem:          fileutil.Stem(stored, fallbackStem),
		SlidesPerPage: slidesPerPage,
		state:         Received,
		history:       []State{Received},
		remove:        remove,
		logger:        p.logger().With("job", id),
		started:       now,
		entered:       now,
	}

	for _, root := range []string{p.UploadRoot, p.OutputRoot} {
		if err := fileutil.EnsureDir(root); err != nil {
			return nil, j.fail(StorageFailure, err)
		}
	}

	j.uploadDir = filepath.Join(p.UploadRoot, id)
	j.workDir = filepath.Join(p.OutputRoot, id)
	for _, d := range []struct {
		path  string
		final bool
	}{{j.uploadDir, false}, {j.workDir, true}} {
		j.track(d.path, true, d.final)
		if err := os.Mkdir(d.path, 0o755); err != nil {
			return nil, j.fail(StorageFailure, err)
		}
	}

	j.input = filepath.Join(j.uploadDir, stored)
	j.track(j.input, false, false)
	n, err := writeFile(j.input, body)
	if err != nil {
		return nil, j.fail(StorageFailure, fmt.Errorf("storing upload: %w", err))
	}
	if n == 0 {
		return nil, j.fail(InvalidRequest, ErrEmptyFile)
	}

	j.logger.Info("job received", "file", j.Filename, "bytes", n, "slides_per_page", slidesPerPage)
	return j, nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Run takes a Received job to Delivering. On a fatal failure the job ends in
// Failed with every artifact removed, and the returned error is a *Error.
// On success only the deliverable and its directory remain.
func (p *Pipeline) Run(ctx context.Context, j *Job) error {
	if err := j.transition(Converting); err != nil {
		return err
	}

	convertDir := filepath.Join(j.workDir, "convert")
	j.track(convertDir, true, false)
	if err := os.Mkdir(convertDir, 0o755); err != nil {
		return j.fail(StorageFailure, err)
	}

	current, err := p.Converter.Convert(ctx, j.input, convertDir)
	if err != nil {
		return j.fail(ConversionFailure, err)
	}
	j.track(current, false, false)

	if j.SlidesPerPage > 1 {
		if err := j.transition(Composing); err != nil {
			return j.fail(CompositionFailure, err)
		}
		composed := filepath.Join(j.workDir, "composed.pdf")
		j.track(composed, false, false)
		pages, err := p.Composer.Compose(ctx, current, composed, j.SlidesPerPage)
		if err != nil {
			return j.fail(CompositionFailure, err)
		}
		j.pageCount = pages
		current = composed
	}

	if err := j.transition(Compressing); err != nil {
		return j.fail(CompressionFailure, err)
	}
	final := filepath.Join(j.workDir, "final.pdf")
	j.track(final, false, true)
	outcome, err := p.Compressor.Compress(ctx, current, final)
	if err != nil {
		return j.fail(StorageFailure, err)
	}
	j.compressed = outcome.Compressed
	if !outcome.Compressed {
		j.logger.Warn("delivering uncompressed document", "kind", CompressionFailure.String(), "reason", j.redact(outcome.Reason))
	}

	if j.pageCount == 0 && p.CountPages != nil {
		if n, err := p.CountPages(final); err == nil {
			j.pageCount = n
		} else {
			j.logger.Debug("page count unavailable", "error", err)
		}
	}

	if err := j.transition(Delivering); err != nil {
		return j.fail(DeliveryFailure, err)
	}
	j.final = final
	j.cleanup(false)
	return nil
}

// SendFunc streams the deliverable to the caller. It returns once the
// transfer has finished or failed.
type SendFunc func(f *os.File, info fs.FileInfo, res Result) error

// Deliver hands the deliverable to send and, once send returns, moves the job
// to Cleaned and removes what is left. A transfer error is logged and
// returned as a DeliveryFailure; cleanup happens either way.
func (p *Pipeline) Deliver(j *Job, send SendFunc) error {
	if j.state != Delivering {
		return fmt.Errorf("%w: deliver in state %s", ErrIllegalTransition, j.state)
	}

	f, err := os.Open(j.final)
	if err != nil {
		return j.fail(StorageFailure, fmt.Errorf("opening deliverable: %w", err))
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return j.fail(StorageFailure, fmt.Errorf("opening deliverable: %w", err))
	}

	sendErr := send(f, info, j.Result())
	_ = f.Close()

	var result error
	if sendErr != nil {
		j.logger.Warn("delivery interrupted", "kind", DeliveryFailure.String(), "error", sendErr)
		result = &Error{Kind: DeliveryFailure, State: Delivering, Message: j.redact(sendErr.Error()), Err: sendErr}
	}

	_ = j.transition(Cleaned)
	j.cleanup(true)
	j.logger.Info("job finished",
		"pages", j.pageCount,
		"bytes", info.Size(),
		"compressed", j.compressed,
		"delivered", sendErr == nil,
		"elapsed_ms", time.Since(j.started).Milliseconds(),
	)
	return result
}

// Discard ends a job that will not be delivered. It is a no-op for jobs
// that already reached a terminal state, so it is safe to defer.
func (p *Pipeline) Discard(j *Job, reason error) {
	if j == nil || j.state.Terminal() {
		return
	}
	if reason == nil {
		reason = fmt.Errorf("job abandoned in state %s", j.state)
	}
	j.fail(DeliveryFailure, reason)
}
