package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "DIFFTESTOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultCorpusDir is the default directory scanned for test programs.
	DefaultCorpusDir = "./test_code"

	// DefaultSourceSuffix is the default suffix of test program files.
	DefaultSourceSuffix = ".c"

	// DefaultArtifactDir is the default directory compiled binaries are written to.
	DefaultArtifactDir = "."

	// DefaultConcurrency runs one test case at a time.
	DefaultConcurrency = 1

	// DefaultMarkdownMaxChars caps the generated markdown summary.
	DefaultMarkdownMaxChars = 65000

	// DefaultHistoryDriver is the default run history database driver.
	DefaultHistoryDriver = "sqlite"

	// DefaultHistorySQLitePath is the default sqlite database file.
	DefaultHistorySQLitePath = "./difftestoor.db"

	// SourcePlaceholder is replaced with the source file path in build commands.
	SourcePlaceholder = "{source}"

	// OutputPlaceholder is replaced with the artifact path in build commands.
	OutputPlaceholder = "{output}"
)

// Result file formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Config is the root configuration for difftestoor.
type Config struct {
	Global     GlobalConfig     `yaml:"global" mapstructure:"global"`
	Corpus     CorpusConfig     `yaml:"corpus" mapstructure:"corpus"`
	Toolchains ToolchainsConfig `yaml:"toolchains" mapstructure:"toolchains"`
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	Results    ResultsConfig    `yaml:"results" mapstructure:"results"`
	History    HistoryConfig    `yaml:"history" mapstructure:"history"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// CorpusConfig describes where test programs are discovered.
type CorpusConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Suffix string `yaml:"suffix" mapstructure:"suffix"`
	Filter string `yaml:"filter,omitempty" mapstructure:"filter"`
}

// ToolchainsConfig holds the two toolchains being compared.
type ToolchainsConfig struct {
	Reference ToolchainConfig `yaml:"reference" mapstructure:"reference"`
	Candidate ToolchainConfig `yaml:"candidate" mapstructure:"candidate"`
}

// ToolchainConfig describes how a toolchain builds a single source file.
// Command is a template; {source} and {output} are substituted per test case.
type ToolchainConfig struct {
	Label   string   `yaml:"label,omitempty" mapstructure:"label"`
	Command []string `yaml:"command" mapstructure:"command"`
	Shell   bool     `yaml:"shell,omitempty" mapstructure:"shell"`
	Dir     string   `yaml:"dir,omitempty" mapstructure:"dir"`
	Env     []string `yaml:"env,omitempty" mapstructure:"env"`
}

// RunConfig controls scheduling and process limits.
type RunConfig struct {
	ArtifactDir    string        `yaml:"artifact_dir" mapstructure:"artifact_dir"`
	Concurrency    int           `yaml:"concurrency" mapstructure:"concurrency"`
	CasesPerSecond float64       `yaml:"cases_per_second,omitempty" mapstructure:"cases_per_second"`
	BuildTimeout   time.Duration `yaml:"build_timeout,omitempty" mapstructure:"build_timeout"`
	RunTimeout     time.Duration `yaml:"run_timeout,omitempty" mapstructure:"run_timeout"`
}

// ResultsConfig controls the report files written after a run.
type ResultsConfig struct {
	Dir              string               `yaml:"dir,omitempty" mapstructure:"dir"`
	Owner            string               `yaml:"owner,omitempty" mapstructure:"owner"`
	Formats          []string             `yaml:"formats,omitempty" mapstructure:"formats"`
	MarkdownMaxChars int                  `yaml:"markdown_max_chars,omitempty" mapstructure:"markdown_max_chars"`
	Upload           *ResultsUploadConfig `yaml:"upload,omitempty" mapstructure:"upload"`
}

// ResultsUploadConfig contains remote storage targets for run results.
type ResultsUploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// HistoryConfig configures the optional run history database.
type HistoryConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// Load reads and merges configuration files in order, later files winning,
// then applies DIFFTESTOOR_* environment overrides and defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}

		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}

		if err := v.MergeConfigMap(raw); err != nil {
			return nil, fmt.Errorf("merging config file %s: %w", path, err)
		}
	}

	// AutomaticEnv only resolves keys viper already knows about, so every
	// leaf key is bound explicitly to make env-only settings visible.
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// bindEnvKeys walks the mapstructure tags of t and binds each leaf key.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Duration(0)) {
			bindEnvKeys(v, ft, key)

			continue
		}

		_ = v.BindEnv(key)
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Corpus.Dir == "" {
		c.Corpus.Dir = DefaultCorpusDir
	}

	if c.Corpus.Suffix == "" {
		c.Corpus.Suffix = DefaultSourceSuffix
	}

	if c.Toolchains.Reference.Label == "" {
		c.Toolchains.Reference.Label = "reference"
	}

	if c.Toolchains.Candidate.Label == "" {
		c.Toolchains.Candidate.Label = "candidate"
	}

	if c.Run.ArtifactDir == "" {
		c.Run.ArtifactDir = DefaultArtifactDir
	}

	if c.Run.Concurrency == 0 {
		c.Run.Concurrency = DefaultConcurrency
	}

	if c.Results.MarkdownMaxChars == 0 {
		c.Results.MarkdownMaxChars = DefaultMarkdownMaxChars
	}

	if c.Results.Dir != "" && len(c.Results.Formats) == 0 {
		c.Results.Formats = []string{FormatJSON, FormatMarkdown}
	}

	if c.History.Driver == "" {
		c.History.Driver = DefaultHistoryDriver
	}

	if c.History.Driver == "sqlite" && c.History.SQLite.Path == "" {
		c.History.SQLite.Path = DefaultHistorySQLitePath
	}

	if c.History.Driver == "postgres" {
		if c.History.Postgres.Port == 0 {
			c.History.Postgres.Port = 5432
		}

		if c.History.Postgres.SSLMode == "" {
			c.History.Postgres.SSLMode = "disable"
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Toolchains.Reference.validate("reference"); err != nil {
		return err
	}

	if err := c.Toolchains.Candidate.validate("candidate"); err != nil {
		return err
	}

	if c.Corpus.Suffix == "" {
		return fmt.Errorf("corpus.suffix must not be empty")
	}

	if c.Run.Concurrency < 1 {
		return fmt.Errorf("run.concurrency must be at least 1, got %d", c.Run.Concurrency)
	}

	if c.Run.CasesPerSecond < 0 {
		return fmt.Errorf("run.cases_per_second must not be negative")
	}

	if c.Run.BuildTimeout < 0 || c.Run.RunTimeout < 0 {
		return fmt.Errorf("run timeouts must not be negative")
	}

	for _, format := range c.Results.Formats {
		switch format {
		case FormatJSON, FormatYAML, FormatMarkdown:
		default:
			return fmt.Errorf("results.formats: unsupported format %q", format)
		}
	}

	if c.Results.Dir != "" {
		dir := filepath.Dir(filepath.Clean(c.Results.Dir))
		if dir != "." && dir != ".." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("results directory parent %q does not exist", dir)
			}
		}
	}

	if s3 := c.S3Upload(); s3 != nil {
		if c.Results.Dir == "" {
			return fmt.Errorf("results.upload.s3 requires results.dir")
		}

		if s3.Bucket == "" {
			return fmt.Errorf("results.upload.s3.bucket is required")
		}
	}

	if c.History.Enabled {
		switch c.History.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("history.driver: unsupported driver %q", c.History.Driver)
		}
	}

	return nil
}

func (t *ToolchainConfig) validate(name string) error {
	if len(t.Command) == 0 {
		return fmt.Errorf("toolchains.%s.command is required", name)
	}

	joined := strings.Join(t.Command, " ")
	if !strings.Contains(joined, SourcePlaceholder) {
		return fmt.Errorf("toolchains.%s.command must reference %s", name, SourcePlaceholder)
	}

	if !strings.Contains(joined, OutputPlaceholder) {
		return fmt.Errorf("toolchains.%s.command must reference %s", name, OutputPlaceholder)
	}

	for _, kv := range t.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fmt.Errorf("toolchains.%s.env: invalid entry %q, expected KEY=VALUE", name, kv)
		}
	}

	return nil
}

// S3Upload returns the S3 upload settings when uploading is enabled.
func (c *Config) S3Upload() *S3UploadConfig {
	if c.Results.Upload == nil || c.Results.Upload.S3 == nil || !c.Results.Upload.S3.Enabled {
		return nil
	}

	return c.Results.Upload.S3
}

// HasFormat reports whether the given results format is enabled.
func (c *Config) HasFormat(format string) bool {
	for _, f := range c.Results.Formats {
		if f == format {
			return true
		}
	}

	return false
}
