package job

import (
	"errors"
	"fmt"
	"strings"

	"handout-maker/backend/internal/layout"
)

// Sentinel errors for request validation and lifecycle misuse.
var (
	ErrMissingFile       = errors.New("no file uploaded")
	ErrEmptyFile         = errors.New("uploaded file is empty")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrUnsupportedCount  = errors.New("unsupported slides per page")
	ErrIllegalTransition = errors.New("illegal job state transition")
)

// Kind classifies job failures.
type Kind int

const (
	InvalidRequest Kind = iota + 1
	ConversionFailure
	CompositionFailure
	CompressionFailure
	DeliveryFailure
	StorageFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "invalid_request"
	case ConversionFailure:
		return "conversion_failed"
	case CompositionFailure:
		return "composition_failed"
	case CompressionFailure:
		return "compression_failed"
	case DeliveryFailure:
		return "delivery_failed"
	case StorageFailure:
		return "storage_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ClientError reports whether the caller, not the server, is at fault.
func (k Kind) ClientError() bool {
	return k == InvalidRequest
}

// Error is a classified job failure. Message is safe to show to callers:
// job directory paths are stripped from it.
type Error struct {
	Kind    Kind
	State   State // state the job was in when it failed
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 if err is not a *Error.
func KindOf(err error) Kind {
	var je *Error
	if errors.As(err, &je) {
		return je.Kind
	}
	return 0
}

func invalid(err error) *Error {
	return &Error{Kind: InvalidRequest, State: Received, Message: err.Error(), Err: err}
}

// acceptedExt lists the upload types the converter is invoked for.
var acceptedExt = map[string]bool{
	".ppt": true, ".pptx": true, ".pptm": true, ".pps": true, ".ppsx": true,
	".pot": true, ".potx": true, ".odp": true, ".otp": true, ".key": true,
	".pdf": true,
}

// ValidateRequest checks an upload before any file is written or tool is run.
func ValidateRequest(filename string, slidesPerPage int) error {
	if !layout.IsSupported(slidesPerPage) {
		return invalid(fmt.Errorf("%w: %d (must be one of %s)", ErrUnsupportedCount, slidesPerPage, layout.SupportedList()))
	}
	if strings.TrimSpace(filename) == "" {
		return invalid(ErrMissingFile)
	}
	ext := strings.ToLower(extOf(filename))
	if !acceptedExt[ext] {
		return invalid(fmt.Errorf("%w: %q", ErrUnsupportedType, ext))
	}
	return nil
}

func extOf(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
