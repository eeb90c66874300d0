// Package config loads the application configuration from flags and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio   = "stdio"
	ModeConvert = "convert"

	// Default values
	DefaultScale       = 1.5
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	DefaultOutput      = "fillable.zip"
)

// Config holds all configuration for the pdf-fillable server.
type Config struct {
	// Mode is "stdio" (MCP server) or "convert" (one-shot batch export).
	Mode string

	// PDFDirectory is where source PDFs are read from.
	PDFDirectory string

	// Output is the archive path written in convert mode.
	Output string

	// Scale is the display-space render scale (display units per content
	// unit) used for detection and stored field rectangles.
	Scale float64

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:         ModeStdio,
		PDFDirectory: currentDir,
		Output:       DefaultOutput,
		Scale:        DefaultScale,
		Version:      "1.0.0",
		ServerName:   "pdf-fillable",
		LogLevel:     DefaultLogLevel,
		MaxFileSize:  DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetEnvPrefix("PDF_FILLABLE")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("out", cfg.Output)
	viper.SetDefault("scale", cfg.Scale)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)

	pflag.String("mode", cfg.Mode, "Run mode: 'stdio' for the MCP server, 'convert' for one-shot batch export")
	pflag.String("dir", cfg.PDFDirectory, "Directory containing PDF files")
	pflag.String("out", cfg.Output, "Output path for the exported archive (convert mode)")
	pflag.Float64("scale", cfg.Scale, "Display render scale used for field geometry")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")

	_ = viper.BindPFlag("mode", pflag.Lookup("mode"))
	_ = viper.BindPFlag("dir", pflag.Lookup("dir"))
	_ = viper.BindPFlag("out", pflag.Lookup("out"))
	_ = viper.BindPFlag("scale", pflag.Lookup("scale"))
	_ = viper.BindPFlag("loglevel", pflag.Lookup("loglevel"))
	_ = viper.BindPFlag("maxfilesize", pflag.Lookup("maxfilesize"))

	setupUsageMessage()
	pflag.Parse()

	cfg.Mode = viper.GetString("mode")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.Output = viper.GetString("out")
	cfg.Scale = viper.GetFloat64("scale")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")

	if cfg.PDFDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.PDFDirectory); err == nil {
			cfg.PDFDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\npdf-fillable - detects blank lines in PDFs and exports fillable forms\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                  # MCP server over stdio (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/pdfs              # stdio mode with custom directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=convert --out=forms.zip   # one-shot batch export\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  PDF_FILLABLE_MODE        Run mode\n")
		fmt.Fprintf(os.Stderr, "  PDF_FILLABLE_DIR         PDF directory\n")
		fmt.Fprintf(os.Stderr, "  PDF_FILLABLE_OUT         Archive output path\n")
		fmt.Fprintf(os.Stderr, "  PDF_FILLABLE_SCALE       Display render scale\n")
		fmt.Fprintf(os.Stderr, "  PDF_FILLABLE_LOGLEVEL    Log level\n")
		fmt.Fprintf(os.Stderr, "  PDF_FILLABLE_MAXFILESIZE Maximum file size\n")
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeConvert {
		return errors.New("mode must be either 'stdio' or 'convert'")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}
	if info, err := os.Stat(c.PDFDirectory); err != nil {
		return fmt.Errorf("cannot access PDF directory %s: %w", c.PDFDirectory, err)
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", c.PDFDirectory)
	}

	if c.Scale <= 0 {
		return errors.New("scale must be positive")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// IsDebug returns true if debug logging is enabled.
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// IsConvertMode returns true when running the one-shot batch export.
func (c *Config) IsConvertMode() bool {
	return c.Mode == ModeConvert
}

// IsStdioMode returns true when running the MCP server.
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}

// String returns a string representation of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, PDFDirectory: %s, Output: %s, Scale: %g, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.PDFDirectory, c.Output, c.Scale, c.LogLevel, c.MaxFileSize)
}
