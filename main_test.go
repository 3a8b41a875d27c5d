package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/go-cmp/cmp"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"handout-maker/backend/internal/compose"
	"handout-maker/backend/internal/config"
	"handout-maker/backend/internal/pdftest"
	"handout-maker/backend/internal/runner"
	"handout-maker/backend/internal/runner/runnertest"
)

func TestMain(m *testing.M) {
	pdfapi.DisableConfigDir()
	os.Exit(m.Run())
}

type testEnv struct {
	cfg     *config.Config
	fake    *runnertest.Fake
	handler http.Handler
}

func newTestEnv(t *testing.T, pages int) *testEnv {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Storage.UploadDir = filepath.Join(root, "uploads")
	cfg.Storage.OutputDir = filepath.Join(root, "converted")
	cfg.Compress.Engine = config.EngineNone
	cfg.Server.MaxUploadBytes = 1 << 20

	fake := runnertest.New().Handle("soffice", func(_ string, args []string) (runner.Result, error) {
		outDir, input := args[len(args)-2], args[len(args)-1]
		stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		return runner.Result{}, os.WriteFile(filepath.Join(outDir, stem+".pdf"), pdftest.Deck(pages, 720, 540), 0o644)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &server{
		pipeline:       newPipeline(cfg, func(time.Duration) runner.Runner { return fake }, logger),
		maxUploadBytes: cfg.Server.MaxUploadBytes,
		logger:         logger,
	}
	return &testEnv{
		cfg:     cfg,
		fake:    fake,
		handler: newHandler(s, &layoutService{canvas: cfg.Canvas()}, cfg.Server.AllowOrigin),
	}
}

func (e *testEnv) assertNoArtifacts(t *testing.T) {
	t.Helper()
	for _, dir := range []string{e.cfg.Storage.UploadDir, e.cfg.Storage.OutputDir} {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("%s holds %d leftover entries", filepath.Base(dir), len(entries))
		}
	}
}

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var eb errorBody
	if err := json.NewDecoder(rec.Body).Decode(&eb); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return eb
}

func TestConvert_Success(t *testing.T) {
	tests := []struct {
		name      string
		slides    string
		wantPages string
	}{
		{name: "default one per page", slides: "", wantPages: "10"},
		{name: "four per page", slides: "4", wantPages: "3"},
		{name: "nine per page", slides: "9", wantPages: "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 10)
			fields := map[string]string{}
			if tt.slides != "" {
				fields["slidesPerPage"] = tt.slides
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, uploadRequest(t, "Lecture 3.pptx", []byte("PK deck"), fields))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			h := rec.Header()
			if got := h.Get("Content-Type"); got != "application/pdf" {
				t.Errorf("Content-Type = %q", got)
			}
			if got := h.Get("Content-Disposition"); !strings.Contains(got, `filename="Lecture 3.pdf"`) {
				t.Errorf("Content-Disposition = %q", got)
			}
			if got := h.Get("X-Page-Count"); got != tt.wantPages {
				t.Errorf("X-Page-Count = %q, want %s", got, tt.wantPages)
			}
			if h.Get("X-Job-ID") == "" {
				t.Error("missing X-Job-ID")
			}
			if got := h.Get("X-Compressed"); got != "false" {
				t.Errorf("X-Compressed = %q", got)
			}

			out := filepath.Join(t.TempDir(), "out.pdf")
			if err := os.WriteFile(out, rec.Body.Bytes(), 0o644); err != nil {
				t.Fatal(err)
			}
			n, err := compose.PageCount(out)
			if err != nil {
				t.Fatalf("response is not a readable PDF: %v", err)
			}
			if strconv.Itoa(n) != tt.wantPages {
				t.Errorf("body has %d pages, want %s", n, tt.wantPages)
			}
			env.assertNoArtifacts(t)
		})
	}
}

func TestConvert_QueryParameter(t *testing.T) {
	env := newTestEnv(t, 6)
	req := uploadRequest(t, "deck.odp", []byte("PK"), nil)
	req.URL.RawQuery = "slidesPerPage=6"

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Page-Count"); got != "1" {
		t.Errorf("X-Page-Count = %q, want 1", got)
	}
}

func TestConvert_NonASCIIFilename(t *testing.T) {
	env := newTestEnv(t, 1)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, "Präsentation.pptx", []byte("PK"), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "filename*=utf-8''") || !strings.Contains(cd, `filename="Prasentation.pdf"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestConvert_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name: "unsupported count",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "deck.pptx", []byte("PK"), map[string]string{"slidesPerPage": "5"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
			wantMsg:    "1, 2, 3, 4, 6, 9",
		},
		{
			name: "non-numeric count",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "deck.pptx", []byte("PK"), map[string]string{"slidesPerPage": "four"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
			wantMsg:    "1, 2, 3, 4, 6, 9",
		},
		{
			name: "missing file",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "", nil, map[string]string{"slidesPerPage": "2"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
			wantMsg:    "no file uploaded",
		},
		{
			name: "unsupported type",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "notes.docx", []byte("PK"), nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
			wantMsg:    "unsupported file type",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(`{"file":"x"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "deck.pptx", bytes.Repeat([]byte("x"), 2<<20), nil)
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "too_large",
		},
		{
			name: "wrong method",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/convert", nil)
			},
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   "method_not_allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 1)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, tt.req(t))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			eb := decodeError(t, rec)
			if eb.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", eb.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && !strings.Contains(eb.Message, tt.wantMsg) {
				t.Errorf("message %q should contain %q", eb.Message, tt.wantMsg)
			}
			if len(env.fake.Calls()) != 0 {
				t.Error("converter must not run for a rejected request")
			}
			for _, dir := range []string{env.cfg.Storage.UploadDir, env.cfg.Storage.OutputDir} {
				if _, err := os.Stat(dir); !os.IsNotExist(err) {
					t.Errorf("%s should not exist after a rejected request", filepath.Base(dir))
				}
			}
		})
	}
}

func TestConvert_ConverterFailure(t *testing.T) {
	env := newTestEnv(t, 1)
	env.fake.Handle("soffice", func(_ string, args []string) (runner.Result, error) {
		return runner.Result{Stderr: "Error: source file could not be loaded: " + args[len(args)-1], ExitCode: 1}, runner.ErrFailed
	})

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, "broken.pptx", []byte("garbage"), map[string]string{"slidesPerPage": "4"}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	eb := decodeError(t, rec)
	if eb.Code != "conversion_failed" {
		t.Errorf("code = %q", eb.Code)
	}
	if !strings.Contains(eb.Message, "could not be loaded") {
		t.Errorf("message should carry the converter diagnostic: %q", eb.Message)
	}
	if strings.Contains(eb.Message, env.cfg.Storage.UploadDir) {
		t.Errorf("message leaks upload path: %q", eb.Message)
	}
	env.assertNoArtifacts(t)
}

func TestHealthAndCORS(t *testing.T) {
	env := newTestEnv(t, 1)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS origin header missing")
	}

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/convert", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "X-Page-Count") {
		t.Errorf("expose headers = %q", got)
	}
}

func TestLayoutService(t *testing.T) {
	env := newTestEnv(t, 1)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	ctx := context.Background()

	list := connect.NewClient[emptypb.Empty, structpb.Struct](srv.Client(), srv.URL+listLayoutsProcedure)
	res, err := list.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		t.Fatal(err)
	}
	var counts []float64
	for _, v := range res.Msg.GetFields()["layouts"].GetListValue().GetValues() {
		counts = append(counts, v.GetStructValue().GetFields()["slidesPerPage"].GetNumberValue())
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 6, 9}, counts); diff != "" {
		t.Errorf("layouts mismatch (-want +got):\n%s", diff)
	}
	if w := res.Msg.GetFields()["canvas"].GetStructValue().GetFields()["width"].GetNumberValue(); w != 612 {
		t.Errorf("canvas width = %v", w)
	}

	resolve := connect.NewClient[wrapperspb.Int32Value, structpb.Struct](srv.Client(), srv.URL+resolveLayoutProcedure)
	got, err := resolve.CallUnary(ctx, connect.NewRequest(wrapperspb.Int32(6)))
	if err != nil {
		t.Fatal(err)
	}
	f := got.Msg.GetFields()
	if f["columns"].GetNumberValue() != 2 || f["rows"].GetNumberValue() != 3 {
		t.Errorf("6-up grid = %vx%v, want 2x3", f["columns"].GetNumberValue(), f["rows"].GetNumberValue())
	}
	if f["cellWidth"].GetNumberValue() <= 0 || f["cellHeight"].GetNumberValue() <= 0 {
		t.Error("cell size must be positive")
	}

	_, err = resolve.CallUnary(ctx, connect.NewRequest(wrapperspb.Int32(5)))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Fatalf("expected invalid_argument, got %v", err)
	}
	var cerr *connect.Error
	if !errors.As(err, &cerr) || !strings.Contains(cerr.Message(), "1, 2, 3, 4, 6, 9") {
		t.Errorf("error should list supported counts: %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"--config", "handout.yaml", "--addr", ":9000", "-v"})
	if err != nil {
		t.Fatal(err)
	}
	want := options{configPath: "handout.yaml", addr: ":9000", verbose: true}
	if diff := cmp.Diff(want, o, cmp.AllowUnexported(options{})); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Error("positional arguments should be rejected")
	}
	if _, err := parseFlags([]string{"--nope"}); err == nil {
		t.Error("unknown flags should be rejected")
	}
}

func TestLoadConfig(t *testing.T) {
	env := map[string]string{
		"HANDOUT_ADDR":            ":7000",
		"HANDOUT_CONVERT_WORKERS": "4",
	}
	getenv := func(k string) string { return env[k] }

	cfg, err := loadConfig(options{}, getenv)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7000" || cfg.Convert.MaxConcurrent != 4 {
		t.Errorf("env not applied: addr=%s workers=%d", cfg.Server.Addr, cfg.Convert.MaxConcurrent)
	}

	cfg, err = loadConfig(options{addr: ":7100"}, getenv)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7100" {
		t.Errorf("flag should win over env, got %s", cfg.Server.Addr)
	}

	env["HANDOUT_CONVERT_WORKERS"] = "0"
	if _, err := loadConfig(options{}, getenv); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	env["HANDOUT_CONVERT_WORKERS"] = "many"
	if _, err := loadConfig(options{}, getenv); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
