package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"mirror-go/internal/mirror"
)

// Config represents the main configuration for mirror.
type Config struct {
	AppID       string            `toml:"app_id"`
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	DataDir     string            `toml:"data_dir"`
	BackupDir   string            `toml:"backup_dir"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	Preferences PreferencesConfig `toml:"preferences"`
	Session     SessionConfig     `toml:"session"`
	Filesystem  FilesystemConfig  `toml:"filesystem"`
	Database    DatabaseConfig    `toml:"database"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Vaults      []VaultConfig     `toml:"vaults"`
}

// Duration is a time.Duration written as a string ("5s", "1m30s") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// ScheduleConfig controls debounced background backups.
type ScheduleConfig struct {
	Delay        Duration `toml:"delay"`         // wait after the last change before backing up
	PollInterval Duration `toml:"poll_interval"` // how often watch looks for changes
}

// PreferencesConfig describes the host application's preference stores.
// This uses a tagged union pattern - Reload determines which other fields are relevant.
type PreferencesConfig struct {
	Dir     string   `toml:"dir,omitempty"` // defaults to <data_dir>/shared_prefs
	Suffix  string   `toml:"suffix"`
	Reload  string   `toml:"reload"`            // "touch", "command" or "none"
	Command []string `toml:"command,omitempty"` // only used for reload=command
}

// SessionConfig decides whether scheduled backups may run.
type SessionConfig struct {
	Type       string `toml:"type"`                  // "always" or "marker"
	MarkerPath string `toml:"marker_path,omitempty"` // only used for type=marker
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// EncryptionConfig holds paths to the age key pair used for archive encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for an archive vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // S3-compatible services; enables path-style addressing
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the operation history database.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a Config for appID with every default filled in.
// Backups are kept under baseDir; the data directory must still be set.
func NewConfig(appID, baseDir string) *Config {
	return &Config{
		AppID:     appID,
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		BackupDir: filepath.Join(baseDir, "backups", appID),
		Schedule: ScheduleConfig{
			Delay:        Duration{5 * time.Second},
			PollInterval: Duration{2 * time.Second},
		},
		Preferences: PreferencesConfig{
			Suffix: ".xml",
			Reload: "touch",
		},
		Session:  SessionConfig{Type: "always"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "mirror.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "mirror.key"),
		},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
		},
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.AppID == "" {
		errs = append(errs, errors.New("app_id is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.BackupDir == "" {
		errs = append(errs, errors.New("backup_dir is required"))
	}
	if c.DataDir != "" && c.BackupDir != "" && mirror.Overlaps(c.DataDir, c.BackupDir) {
		errs = append(errs, errors.New("data_dir and backup_dir must differ and must not contain each other"))
	}
	if c.Schedule.Delay.Duration < 0 {
		errs = append(errs, errors.New("schedule.delay must not be negative"))
	}

	switch c.Preferences.Reload {
	case "", "touch", "none":
	case "command":
		if len(c.Preferences.Command) == 0 {
			errs = append(errs, errors.New("preferences.command is required for reload=command"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown preferences.reload: %s", c.Preferences.Reload))
	}

	switch c.Session.Type {
	case "", "always":
	case "marker":
		if c.Session.MarkerPath == "" {
			errs = append(errs, errors.New("session.marker_path is required for type=marker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.type: %s", c.Session.Type))
	}

	seen := make(map[string]bool)
	for i, v := range c.Vaults {
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("vaults[%d]: name is required", i))
		} else if seen[v.Name] {
			errs = append(errs, fmt.Errorf("vaults[%d]: duplicate name %q", i, v.Name))
		}
		seen[v.Name] = true
	}

	return errors.Join(errs...)
}

// Vault returns the vault named name, or the first vault when name is empty.
func (c *Config) Vault(name string) (VaultConfig, error) {
	if len(c.Vaults) == 0 {
		return VaultConfig{}, errors.New("no vaults configured")
	}
	if name == "" {
		return c.Vaults[0], nil
	}
	for _, v := range c.Vaults {
		if v.Name == name {
			return v, nil
		}
	}
	return VaultConfig{}, fmt.Errorf("no vault named %q", name)
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
