package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"

	"github.com/formably/pdf-fillable/internal/config"
	"github.com/formably/pdf-fillable/internal/fillable"
	"github.com/formably/pdf-fillable/internal/mcp"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// newLogger builds the structured logger. In stdio mode everything goes to
// stderr so the MCP protocol on stdout stays clean.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// runStdioMode serves MCP over stdio until the parent closes the pipe or a
// signal arrives.
func runStdioMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		log.Printf("Received signal: %s", sig)
		cancel()
		<-serverErrCh
	case err := <-serverErrCh:
		if err != nil {
			log.Printf("Server error: %v", err)
			os.Exit(1)
		}
	}
}

// runConvertMode ingests every PDF in the configured directory, detects
// blank lines, and writes the exported archive.
func runConvertMode(ctx context.Context, cfg *config.Config, service *fillable.Service, logger *slog.Logger) error {
	paths, err := findPDFs(cfg.PDFDirectory)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PDF files found in %s", cfg.PDFDirectory)
	}

	ingest := service.AddDocuments(paths)
	for path, err := range ingest.Failed {
		logger.Warn("skipping unreadable file", "file", path, "error", err)
	}
	if len(ingest.Added) == 0 {
		return fmt.Errorf("none of the %d PDF file(s) could be ingested", len(paths))
	}

	detection, err := service.DetectAll(ctx)
	if err != nil {
		return err
	}
	for _, w := range detection.Warnings {
		logger.Warn("detection failed", "detail", w)
	}

	blob, err := service.ExportAll(ctx)
	if err != nil {
		if fillable.IsNoFields(err) {
			return fmt.Errorf("no blank lines detected in any document; nothing to export")
		}
		return err
	}

	if err := os.WriteFile(cfg.Output, blob, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", cfg.Output, err)
	}
	logger.Info("wrote export", "path", cfg.Output, "bytes", len(blob))
	return nil
}

// findPDFs lists the PDF files directly inside dir, sorted by name.
func findPDFs(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if version != "dev" {
		cfg.Version = version
	}

	// Keep stdout reserved for the MCP protocol in stdio mode.
	log.SetOutput(os.Stderr)

	logger := newLogger(cfg)
	service := fillable.NewService(cfg.MaxFileSize, cfg.Scale, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsConvertMode() {
		if err := runConvertMode(ctx, cfg, service, logger); err != nil {
			logger.Error("convert failed", "error", err)
			os.Exit(1)
		}
		return
	}

	server, err := mcp.NewServer(cfg, service)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	runStdioMode(ctx, cancel, server)
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("pdf-fillable\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
