package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var (
	ErrInputMissing      = errors.New("--input is required")
	ErrInputNotFound     = errors.New("input mbox not found")
	ErrMutuallyExclusive = errors.New("include and exclude flags are mutually exclusive")
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Config captures all command-line options of an extraction run.
type Config struct {
	InputPath              string
	OutputPath             string
	Format                 string
	ExtractAttachments     bool
	AttachmentsDir         string
	NoInlineImages         bool
	SkipAttachmentMetadata bool
	SidecarMetadata        bool
	ManifestDB             string
	Start                  int
	Stop                   int
	Workers                int
	EnableParallel         bool
	ParallelMinDocuments   int
	ParallelMinSizeMB      int64
	BatchSize              int
	MaxPayloadSizeMB       int
	MaxBodyPartSizeMB      int
	MaxRecursionDepth      int
	HTMLToMarkdown         bool
	SanitizeHTML           bool
	IncludeHeader          []string
	IncludeBody            []string
	ExcludeHeader          []string
	ExcludeBody            []string
	Progress               bool
	LogLevel               string
	LogDir                 string
}

// MaxPayloadBytes returns the per-part decoder input limit, 0 for unlimited.
func (c Config) MaxPayloadBytes() int64 {
	return int64(c.MaxPayloadSizeMB) * 1024 * 1024
}

// MaxBodyPartBytes returns the per-part decoded text limit, 0 for unlimited.
func (c Config) MaxBodyPartBytes() int64 {
	return int64(c.MaxBodyPartSizeMB) * 1024 * 1024
}

// ManifestPath is the JSONL attachment manifest written next to the attachments.
func (c Config) ManifestPath() string {
	return filepath.Join(c.AttachmentsDir, "manifest.jsonl")
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.StringP("input", "i", "", "Path to the .mbox file to convert")
	flags.StringP("output", "o", "", "Output file (defaults to the input path with a .json or .csv extension)")
	flags.String("format", FormatJSON, "Output format: json or csv")
	flags.BoolP("csv", "c", false, "Shorthand for --format csv")
	flags.BoolP("attachments", "a", false, "Extract attachments and inline images to disk")
	flags.String("attachments-dir", "", "Attachment folder (defaults to an \"attachments\" folder next to the output)")
	flags.Bool("no-inline-images", false, "Do not extract inline images")
	flags.Bool("skip-attachment-metadata", false, "Extract files but leave the attachment manifest empty")
	flags.Bool("sidecar-metadata", false, "Write a .meta.json file next to every extracted attachment")
	flags.String("manifest-db", "", "Also index attachment records in this SQLite database")
	flags.Int("start", 0, "Index of the first message to process")
	flags.Int("stop", 0, "Index of the message to stop at, not included (0 processes until the end)")
	flags.Int("workers", 1, "Number of parallel workers")
	flags.Bool("enable-parallel", false, "Process in parallel regardless of the archive size")
	flags.Int("parallel-min-documents", 1000, "Minimum message count before parallel processing is used")
	flags.Int64("parallel-min-size-mb", 200, "Minimum archive size in MB before parallel processing is used")
	flags.Int("batch-size", 100, "Messages per batch")
	flags.Int("max-payload-size-mb", 50, "Truncate raw part payloads above this size before decoding (0 disables)")
	flags.Int("max-body-part-size-mb", 10, "Truncate decoded body text per part above this size (0 disables)")
	flags.Int("max-recursion-depth", 50, "Maximum nesting depth of multipart structures")
	flags.Bool("html-to-markdown", false, "Convert HTML body parts to Markdown")
	flags.Bool("sanitize-html", false, "Sanitize HTML body parts")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	flags.Bool("progress", true, "Show a progress bar (only at info log level)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (optional)")
	flags.String("config", "", "YAML file with flag values; command-line flags take precedence")

	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	configFile, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if configFile != "" {
		if err := applyFile(flags, configFile); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	r := flagReader{flags: flags}
	cfg.InputPath = r.str("input")
	cfg.OutputPath = r.str("output")
	cfg.Format = strings.ToLower(r.str("format"))
	csv := r.boolean("csv")
	cfg.ExtractAttachments = r.boolean("attachments")
	cfg.AttachmentsDir = r.str("attachments-dir")
	cfg.NoInlineImages = r.boolean("no-inline-images")
	cfg.SkipAttachmentMetadata = r.boolean("skip-attachment-metadata")
	cfg.SidecarMetadata = r.boolean("sidecar-metadata")
	cfg.ManifestDB = r.str("manifest-db")
	cfg.Start = r.integer("start")
	cfg.Stop = r.integer("stop")
	cfg.Workers = r.integer("workers")
	cfg.EnableParallel = r.boolean("enable-parallel")
	cfg.ParallelMinDocuments = r.integer("parallel-min-documents")
	cfg.ParallelMinSizeMB = r.int64("parallel-min-size-mb")
	cfg.BatchSize = r.integer("batch-size")
	cfg.MaxPayloadSizeMB = r.integer("max-payload-size-mb")
	cfg.MaxBodyPartSizeMB = r.integer("max-body-part-size-mb")
	cfg.MaxRecursionDepth = r.integer("max-recursion-depth")
	cfg.HTMLToMarkdown = r.boolean("html-to-markdown")
	cfg.SanitizeHTML = r.boolean("sanitize-html")
	cfg.IncludeHeader = r.strings("include-header")
	cfg.IncludeBody = r.strings("include-body")
	cfg.ExcludeHeader = r.strings("exclude-header")
	cfg.ExcludeBody = r.strings("exclude-body")
	cfg.Progress = r.boolean("progress")
	cfg.LogLevel = r.str("log-level")
	cfg.LogDir = r.str("log-dir")
	if r.err != nil {
		return Config{}, r.err
	}

	if csv {
		cfg.Format = FormatCSV
	}
	cfg = applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyDefaults(cfg Config) Config {
	cfg.InputPath = strings.TrimSpace(cfg.InputPath)
	if cfg.OutputPath == "" && cfg.InputPath != "" {
		cfg.OutputPath = strings.TrimSuffix(cfg.InputPath, filepath.Ext(cfg.InputPath)) + "." + cfg.Format
	}
	if cfg.AttachmentsDir == "" {
		cfg.AttachmentsDir = filepath.Join(filepath.Dir(cfg.OutputPath), "attachments")
	}
	cfg.AttachmentsDir = filepath.Clean(cfg.AttachmentsDir)

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.InputPath == "" {
		return ErrInputMissing
	}
	info, err := os.Stat(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInputNotFound, cfg.InputPath)
	}
	if info.IsDir() {
		return fmt.Errorf("--input must be a file, got directory %s", cfg.InputPath)
	}

	switch cfg.Format {
	case FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("invalid --format: %s", cfg.Format)
	}

	if cfg.Start < 0 {
		return fmt.Errorf("--start must be greater than or equal 0")
	}
	if cfg.Stop < 0 {
		return fmt.Errorf("--stop must be greater than or equal 0")
	}
	if cfg.Stop != 0 && cfg.Stop <= cfg.Start {
		return fmt.Errorf("--stop must be greater than --start")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("--batch-size must be at least 1")
	}
	if cfg.ParallelMinDocuments < 0 || cfg.ParallelMinSizeMB < 0 {
		return fmt.Errorf("parallel thresholds must not be negative")
	}
	if cfg.MaxPayloadSizeMB < 0 || cfg.MaxBodyPartSizeMB < 0 {
		return fmt.Errorf("size limits must not be negative")
	}
	if cfg.MaxRecursionDepth < 1 {
		return fmt.Errorf("--max-recursion-depth must be at least 1")
	}

	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return ErrMutuallyExclusive
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

// applyFile sets every flag named in the YAML file that was not given on the command line.
func applyFile(flags *pflag.FlagSet, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	for name, value := range values {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("config file %s: unknown option %q", path, name)
		}
		if flag.Changed || name == "config" {
			continue
		}

		items, isList := value.([]any)
		if !isList {
			items = []any{value}
		}
		for _, item := range items {
			if err := flags.Set(name, fmt.Sprint(item)); err != nil {
				return fmt.Errorf("config file %s: option %q: %w", path, name, err)
			}
		}
	}
	return nil
}

// flagReader keeps the first lookup error so LoadConfig reads flags without repeated checks.
type flagReader struct {
	flags *pflag.FlagSet
	err   error
}

func (r *flagReader) keep(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func (r *flagReader) str(name string) string {
	v, err := r.flags.GetString(name)
	r.keep(err)
	return v
}

func (r *flagReader) boolean(name string) bool {
	v, err := r.flags.GetBool(name)
	r.keep(err)
	return v
}

func (r *flagReader) integer(name string) int {
	v, err := r.flags.GetInt(name)
	r.keep(err)
	return v
}

func (r *flagReader) int64(name string) int64 {
	v, err := r.flags.GetInt64(name)
	r.keep(err)
	return v
}

func (r *flagReader) strings(name string) []string {
	v, err := r.flags.GetStringArray(name)
	r.keep(err)
	return v
}
