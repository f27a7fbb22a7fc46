package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/r9s-ai/open-endpoint-router/internal/logx"
	"github.com/r9s-ai/open-endpoint-router/pkg/config"
)

func Run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	accessLogger, accessClose, accessColor, err := openAccessLogger(cfg)
	if err != nil {
		return fmt.Errorf("init access log: %w", err)
	}
	if accessClose != nil {
		defer func() { _ = accessClose.Close() }()
	}

	pidCleanup, err := writePIDFile(cfg)
	if err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if pidCleanup != nil {
		defer func() { _ = pidCleanup.Close() }()
	}

	app, err := NewApp(cfg, Options{})
	if err != nil {
		return err
	}

	stopSignals := installReloadSignalHandler(app)
	defer stopSignals()
	autoReloadClose, err := installRulesAutoReload(app)
	if err != nil {
		return fmt.Errorf("init rules auto reload: %w", err)
	}
	if autoReloadClose != nil {
		defer func() { _ = autoReloadClose.Close() }()
	}

	accessFormatter, err := compileAccessFormat(cfg)
	if err != nil {
		return err
	}
	engine := NewRouter(app, accessLogger, accessColor, accessFormatter)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           engine,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		log.Printf("open-endpoint-router listening on %s resolver=%s", cfg.Server.Listen, cfg.Resolver.Kind)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("run: %w", err)
	case <-ctx.Done():
	}
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// compileAccessFormat falls back to the combined preset when neither a
// format nor a preset is configured.
func compileAccessFormat(cfg *config.Config) (*logx.AccessLogFormatter, error) {
	preset := cfg.Logging.AccessLogFormatPreset
	if strings.TrimSpace(cfg.Logging.AccessLogFormat) == "" && strings.TrimSpace(preset) == "" {
		preset = logx.DefaultAccessLogPreset
	}
	format, err := logx.ResolveAccessLogFormat(cfg.Logging.AccessLogFormat, preset)
	if err != nil {
		return nil, fmt.Errorf("resolve access log format: %w", err)
	}
	f, err := logx.CompileAccessLogFormat(format)
	if err != nil {
		return nil, fmt.Errorf("compile access_log_format: %w", err)
	}
	return f, nil
}

func openAccessLogger(cfg *config.Config) (*log.Logger, io.Closer, bool, error) {
	if cfg == nil || !cfg.Logging.AccessLogEnabled() {
		return nil, nil, false, nil
	}

	path := strings.TrimSpace(cfg.Logging.AccessLogPath)
	if path == "" {
		return log.New(os.Stdout, "", log.LstdFlags), nil, logx.ShouldColor(os.Stdout), nil
	}

	rot := cfg.Logging.AccessLogRotate
	if rot.Enabled {
		w, err := logx.NewRotatingWriter(logx.RotateOptions{
			Path:       path,
			MaxSizeMB:  rot.MaxSizeMB,
			MaxBackups: rot.MaxBackups,
			MaxAgeDays: rot.MaxAgeDays,
			Compress:   rot.Compress,
		})
		if err != nil {
			return nil, nil, false, err
		}
		return log.New(w, "", log.LstdFlags), w, false, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, false, err
		}
	}
	// #nosec G304 -- access_log_path comes from trusted config/env.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, false, err
	}
	return log.New(f, "", log.LstdFlags), f, false, nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func writePIDFile(cfg *config.Config) (io.Closer, error) {
	path := strings.TrimSpace(cfg.Server.PidFile)
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	tmp := path + ".tmp"
	// #nosec G304 -- pid_file comes from trusted config/env.
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	return closerFunc(func() error { return os.Remove(path) }), nil
}
