package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultRequestTimeout bounds every call to the file server except
// content downloads and uploads, which are bounded by the caller's context.
const DefaultRequestTimeout = 30 * time.Second

// Config represents the main configuration for drive.
type Config struct {
	ServerURL      string           `toml:"server_url"`
	RequestTimeout Duration         `toml:"request_timeout"`
	BaseDir        string           `toml:"base_dir"`
	LogDir         string           `toml:"log_dir"`
	Upload         UploadConfig     `toml:"upload"`
	Encryption     EncryptionConfig `toml:"encryption"`
	Database       DatabaseConfig   `toml:"database"`
	Staging        StagingConfig    `toml:"staging"`
	Filesystem     FilesystemConfig `toml:"filesystem"`
	Exports        []ExportConfig   `toml:"exports"`
	Metrics        MetricsConfig    `toml:"metrics"`
}

// Duration is a time.Duration that reads and writes as a TOML string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UploadConfig controls the upload coordinator.
type UploadConfig struct {
	MaxParallel int64 `toml:"max_parallel"` // 0 means no limit
	Encrypt     bool  `toml:"encrypt"`      // age-encrypt files before upload
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// FilesystemConfig holds settings for resolving local files to upload.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// ExportConfig represents configuration for an export sink.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ExportConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
	// Optional: a custom endpoint (MinIO) and static credentials. When the
	// credentials are empty the default AWS credential chain is used.
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// DatabaseConfig represents configuration for the local state database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StagingConfig represents configuration for the staging area.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StagingConfig struct {
	Type       string `toml:"type"`                  // "memory" or "filesystem"
	StagingDir string `toml:"staging_dir,omitempty"` // only used for type=filesystem
	MaxSize    int64  `toml:"max_size"`              // max total size in bytes; defaults to 256MB
}

// MetricsConfig controls where counters are pushed at the end of a command.
type MetricsConfig struct {
	PushgatewayURL string `toml:"pushgateway_url,omitempty"` // empty disables pushing
	Job            string `toml:"job,omitempty"`
}

// NewConfig creates a new Config for serverURL with default paths under baseDir.
func NewConfig(serverURL, baseDir string) *Config {
	return &Config{
		ServerURL:      serverURL,
		RequestTimeout: Duration{DefaultRequestTimeout},
		BaseDir:        baseDir,
		LogDir:         filepath.Join(baseDir, "log"),
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "drive.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "drive.key"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Staging: StagingConfig{
			Type:       "filesystem",
			StagingDir: filepath.Join(baseDir, "staging"),
		},
		Filesystem: FilesystemConfig{Ignore: []string{".DS_Store", ".git"}},
		Exports: []ExportConfig{
			{Type: "filesystem", Name: "local", FSRoot: filepath.Join(baseDir, "exports")},
		},
		Metrics: MetricsConfig{Job: "drive"},
	}
}

// Validate checks the fields every command depends on.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url must be set")
	}
	if c.Upload.MaxParallel < 0 {
		return fmt.Errorf("upload.max_parallel must not be negative")
	}
	seen := make(map[string]bool)
	for _, e := range c.Exports {
		if e.Name == "" {
			return fmt.Errorf("export of type %q has no name", e.Type)
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate export name %q", e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// Export returns the export sink config called name. An empty name selects
// the first configured sink.
func (c *Config) Export(name string) (ExportConfig, error) {
	if len(c.Exports) == 0 {
		return ExportConfig{}, fmt.Errorf("no exports configured")
	}
	if name == "" {
		return c.Exports[0], nil
	}
	for _, e := range c.Exports {
		if e.Name == name {
			return e, nil
		}
	}
	return ExportConfig{}, fmt.Errorf("no export named %q", name)
}

// Timeout returns the request timeout, falling back to DefaultRequestTimeout.
func (c *Config) Timeout() time.Duration {
	if c.RequestTimeout.Duration <= 0 {
		return DefaultRequestTimeout
	}
	return c.RequestTimeout.Duration
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
