// Command handout-maker serves an HTTP endpoint that turns slide decks into
// printable PDF handouts with several slides per page.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"handout-maker/backend/internal/compose"
	"handout-maker/backend/internal/compress"
	"handout-maker/backend/internal/config"
	"handout-maker/backend/internal/convert"
	"handout-maker/backend/internal/job"
	"handout-maker/backend/internal/runner"
)

type options struct {
	configPath string
	addr       string
	verbose    bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("handout-maker", flag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", config.EnvConfigPath(), "YAML config file (env HANDOUT_CONFIG)")
	fs.StringVar(&o.addr, "addr", "", "listen address, overrides server.addr")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log debug output")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

// loadConfig resolves settings in order: defaults, file, environment, flags.
func loadConfig(o options, getenv func(string) string) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newPipeline wires the external tools and in-process stages described by cfg.
func newPipeline(cfg *config.Config, r func(timeout time.Duration) runner.Runner, logger *slog.Logger) *job.Pipeline {
	var engine compress.Engine
	switch cfg.Compress.Engine {
	case config.EngineGhostscript:
		engine = &compress.Ghostscript{
			Runner: r(cfg.Compress.Timeout.Duration),
			Binary: cfg.Compress.Binary,
			Preset: cfg.Compress.Preset,
		}
	case config.EnginePDFCPU:
		engine = compress.Optimizer{}
	}

	return &job.Pipeline{
		UploadRoot: cfg.Storage.UploadDir,
		OutputRoot: cfg.Storage.OutputDir,
		Converter:  convert.NewOffice(r(cfg.Convert.Timeout.Duration), cfg.Convert.Binary, cfg.Convert.MaxConcurrent, logger),
		Composer:   compose.New(cfg.Canvas()),
		Compressor: compress.NewStage(engine, logger),
		CountPages: compose.PageCount,
		Logger:     logger,
	}
}

func execRunner(timeout time.Duration) runner.Runner {
	return &runner.ExecRunner{Timeout: timeout}
}

// serve runs until ctx is canceled, then drains in-flight jobs for up to the
// configured grace period.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", cfg.Server.ShutdownGrace.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// maxprocs.Set only fails on an invalid GOMAXPROCS value; runtime defaults apply then.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	config.WarnUnknownEnv(os.Stderr, os.Environ())
	cfg, err := loadConfig(opts, os.Getenv)
	if err != nil {
		logger.Error("configuration", "error", err)
		os.Exit(1)
	}

	// pdfcpu would otherwise create a config directory under the user's home.
	pdfapi.DisableConfigDir()

	ctx, stop := notifyContext(context.Background())
	defer stop()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Error("listen", "addr", cfg.Server.Addr, "error", err)
		os.Exit(1)
	}

	s := &server{
		pipeline:       newPipeline(cfg, execRunner, logger),
		maxUploadBytes: cfg.Server.MaxUploadBytes,
		logger:         logger,
	}
	h := newHandler(s, &layoutService{canvas: cfg.Canvas()}, cfg.Server.AllowOrigin)

	if err := serve(ctx, cfg, ln, h, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
