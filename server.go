package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"handout-maker/backend/internal/fileutil"
	"handout-maker/backend/internal/job"
	"handout-maker/backend/internal/layout"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory.
const multipartMemory = 8 << 20

type server struct {
	pipeline       *job.Pipeline
	maxUploadBytes int64
	logger         *slog.Logger
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: code, Message: message})
}

// writeJobError maps a pipeline failure to its HTTP status. Only classified
// messages reach the client; anything else is reported generically.
func writeJobError(w http.ResponseWriter, err error) {
	var je *job.Error
	if !errors.As(err, &je) {
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	status := http.StatusInternalServerError
	if je.Kind.ClientError() {
		status = http.StatusBadRequest
	}
	writeError(w, status, je.Kind.String(), je.Message)
}

// parseSlidesPerPage reads the requested count. A missing value means one per page.
func parseSlidesPerPage(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || !layout.IsSupported(n) {
		return 0, &job.Error{
			Kind:    job.InvalidRequest,
			State:   job.Received,
			Message: fmt.Sprintf("%v: %q (must be one of %s)", job.ErrUnsupportedCount, raw, layout.SupportedList()),
			Err:     job.ErrUnsupportedCount,
		}
	}
	return n, nil
}

func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large",
				fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, job.InvalidRequest.String(), "expected a multipart/form-data upload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	slidesPerPage, err := parseSlidesPerPage(r.FormValue("slidesPerPage"))
	if err != nil {
		writeJobError(w, err)
		return
	}

	var (
		filename string
		body     io.Reader = http.NoBody
	)
	file, hdr, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		filename, body = hdr.Filename, file
	case !errors.Is(err, http.ErrMissingFile):
		writeError(w, http.StatusBadRequest, job.InvalidRequest.String(), "cannot read uploaded file")
		return
	}

	j, err := s.pipeline.Start(filename, slidesPerPage, body)
	if err != nil {
		writeJobError(w, err)
		return
	}
	defer s.pipeline.Discard(j, nil)

	if err := s.pipeline.Run(r.Context(), j); err != nil {
		writeJobError(w, err)
		return
	}

	started := false
	err = s.pipeline.Deliver(j, func(f *os.File, info fs.FileInfo, res job.Result) error {
		started = true
		h := w.Header()
		h.Set("Content-Type", "application/pdf")
		h.Set("Content-Disposition", fileutil.ContentDisposition(res.Filename))
		h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		h.Set("X-Job-ID", j.ID)
		h.Set("X-Page-Count", strconv.Itoa(res.PageCount))
		h.Set("X-Compressed", strconv.FormatBool(res.Compressed))
		w.WriteHeader(http.StatusOK)
		_, err := io.Copy(w, f)
		return err
	})
	if err != nil && !started {
		writeJobError(w, err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

// corsMiddleware allows browser front ends on other origins to call the API.
func corsMiddleware(allowOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Connect-Protocol-Version")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Job-ID, X-Page-Count, X-Compressed")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// newHandler assembles the HTTP surface.
func newHandler(s *server, layouts *layoutService, allowOrigin string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/convert", s.handleConvert)
	mux.HandleFunc("/healthz", handleHealth)

	path, handler := newLayoutServiceHandler(layouts)
	mux.Handle(path, handler)

	return logRequests(s.logger, corsMiddleware(allowOrigin, mux))
}
