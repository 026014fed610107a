package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultExtensions are the file types scanned when none are configured.
var DefaultExtensions = []string{".cs", ".uss", ".uxml"}

// DefaultExclude are the directory patterns skipped when none are configured.
var DefaultExclude = []string{"codebase_backups", ".git"}

// Config represents the main configuration for snapkeep.
type Config struct {
	RepositoryName string           `toml:"repository_name"`
	SourceDir      string           `toml:"source_dir"`
	BaseDir        string           `toml:"base_dir"`
	LogDir         string           `toml:"log_dir"`
	Scan           ScanConfig       `toml:"scan"`
	Vault          VaultConfig      `toml:"vault"`
	Encryption     EncryptionConfig `toml:"encryption"`
	Database       DatabaseConfig   `toml:"database"`
}

// ScanConfig selects which files a scan captures.
type ScanConfig struct {
	Extensions  []string `toml:"extensions"`
	Exclude     []string `toml:"exclude"`
	Compression string   `toml:"compression,omitempty"` // "deflate" (default) or "zstd"
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for the archive storage backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the operation history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config with the provided values and defaults for
// everything else: a filesystem vault, sqlite history and no encryption.
func NewConfig(repositoryName, sourceDir, baseDir string) *Config {
	return &Config{
		RepositoryName: repositoryName,
		SourceDir:      sourceDir,
		BaseDir:        baseDir,
		LogDir:         filepath.Join(baseDir, "log"),
		Scan: ScanConfig{
			Extensions: append([]string(nil), DefaultExtensions...),
			Exclude:    append([]string(nil), DefaultExclude...),
		},
		Vault: VaultConfig{
			Type:        "filesystem",
			Name:        "local",
			FSVaultRoot: filepath.Join(baseDir, "archives"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "snapkeep.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "snapkeep.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// Validate checks that the fields every command needs are present.
func (c *Config) Validate() error {
	var errs []error
	if c.RepositoryName == "" {
		errs = append(errs, errors.New("repository_name is required"))
	}
	if c.SourceDir == "" {
		errs = append(errs, errors.New("source_dir is required"))
	}
	if len(c.Scan.Extensions) == 0 {
		errs = append(errs, errors.New("scan.extensions must list at least one extension"))
	}
	if c.Vault.Type == "" {
		errs = append(errs, errors.New("vault.type is required"))
	}
	if c.LogDir == "" {
		errs = append(errs, errors.New("log_dir is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
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

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
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

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
