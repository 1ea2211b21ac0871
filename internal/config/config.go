package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/tally/internal/importer"
)

// FileName is the workspace config file.
const FileName = "tally.yaml"

// Store drivers.
const (
	DriverLedger   = "ledger"
	DriverPostgres = "postgres"
)

// Config represents the top-level tally.yaml configuration.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Import    ImportConfig    `yaml:"import"`
	Rules     RulesConfig     `yaml:"rules"`
	Store     StoreConfig     `yaml:"store"`
	Sheets    SheetsConfig    `yaml:"sheets,omitempty"`
	Log       LogConfig       `yaml:"log"`
	Git       GitConfig       `yaml:"git"`
}

// WorkspaceConfig identifies the workspace and the organization that owns it.
type WorkspaceConfig struct {
	Name         string `yaml:"name"`
	Organization string `yaml:"organization"`
}

// ImportConfig controls the CSV import pipeline.
type ImportConfig struct {
	Source         string `yaml:"source"`
	DefaultAccount string `yaml:"default_account,omitempty"`
	Decoder        string `yaml:"decoder"`
	Workers        int    `yaml:"workers"`
}

// RulesConfig locates the categorization rule file.
type RulesConfig struct {
	Path string `yaml:"path"` // relative to the workspace root
}

// StoreConfig selects where imported transactions are upserted.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

// SheetsConfig points the sheets sync at a spreadsheet range.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id,omitempty"`
	Range           string `yaml:"range,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	Account         string `yaml:"account,omitempty"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a tally.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("", "")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadWorkspace loads <root>/.env when present, reads <root>/tally.yaml,
// applies environment overrides and validates the result. Variables already
// set in the environment win over .env.
func LoadWorkspace(root string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := Load(filepath.Join(root, FileName))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from TALLY_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("TALLY_DATABASE_URL", &c.Store.DSN)
	set("TALLY_STORE_DRIVER", &c.Store.Driver)
	set("TALLY_SHEET_ID", &c.Sheets.SpreadsheetID)
	set("TALLY_SHEET_RANGE", &c.Sheets.Range)
	set("TALLY_SHEETS_CREDENTIALS", &c.Sheets.CredentialsFile)
	set("TALLY_LOG_LEVEL", &c.Log.Level)
	set("TALLY_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("TALLY_IMPORT_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing TALLY_IMPORT_WORKERS %q: %w", v, err)
		}
		c.Import.Workers = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverLedger:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver %q needs a dsn (or TALLY_DATABASE_URL)", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if importer.DefaultRegistry().Get(c.Import.Decoder) == nil {
		return fmt.Errorf("unknown decoder %q", c.Import.Decoder)
	}
	if c.Import.Source == "" {
		return fmt.Errorf("import.source must not be empty")
	}
	if c.Import.Workers < 0 {
		return fmt.Errorf("import.workers must not be negative")
	}
	return nil
}

// RulesPath returns the absolute rule file path for a workspace root.
func (c *Config) RulesPath(root string) string {
	if filepath.IsAbs(c.Rules.Path) {
		return c.Rules.Path
	}
	return filepath.Join(root, c.Rules.Path)
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new workspace.
func Default(name, organization string) *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Name:         name,
			Organization: organization,
		},
		Import: ImportConfig{
			Source:  "csv",
			Decoder: "csv",
			Workers: 1,
		},
		Rules: RulesConfig{
			Path: "rules/categorization-rules.yaml",
		},
		Store: StoreConfig{
			Driver: DriverLedger,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Git: GitConfig{
			AutoCommit:  true,
			AuthorName:  "Tally Importer",
			AuthorEmail: "importer@tally.local",
		},
	}
}
