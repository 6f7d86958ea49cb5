package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Zuo-Peng/chat-archive/internal/parse"
)

const envPrefix = "CHATARC_"

type Config struct {
	InputRoot      string `toml:"input_root"`
	ArchiveRoot    string `toml:"archive_root"`
	DBPath         string `toml:"db_path"`      // default <archive_root>/backup.db
	SidecarPath    string `toml:"sidecar_path"` // default <input_root>/info.json
	Workers        int    `toml:"workers"`
	Timezone       string `toml:"timezone"`
	DateOrder      string `toml:"date_order"`
	ConflictPolicy string `toml:"conflict_policy"`
	LogLevel       string `toml:"log_level"`
	MetricsFile    string `toml:"metrics_file"`

	home string
}

func Default() *Config {
	return &Config{
		InputRoot:      "input",
		ArchiveRoot:    "output",
		Workers:        4,
		DateOrder:      string(parse.DayMonthYear),
		ConflictPolicy: "reject",
		LogLevel:       "info",
	}
}

// Path is the config file read by Load.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chatarc", "config.toml"), nil
}

// Load layers the config file, a .env file in the working directory and
// CHATARC_* environment variables over the defaults.
func Load() (*Config, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFile(p)
}

// LoadFile is Load with an explicit config file and no .env handling. A
// missing file is not an error.
func LoadFile(cfgPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.home = home

	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"INPUT_ROOT":      &c.InputRoot,
		"ARCHIVE_ROOT":    &c.ArchiveRoot,
		"DB_PATH":         &c.DBPath,
		"SIDECAR_PATH":    &c.SidecarPath,
		"TIMEZONE":        &c.Timezone,
		"DATE_ORDER":      &c.DateOrder,
		"CONFLICT_POLICY": &c.ConflictPolicy,
		"LOG_LEVEL":       &c.LogLevel,
		"METRICS_FILE":    &c.MetricsFile,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", envPrefix, err)
		}
		c.Workers = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := parse.ParseDateOrder(c.DateOrder); err != nil {
		return err
	}
	switch strings.ToLower(c.ConflictPolicy) {
	case "reject", "keep", "replace", "prompt":
	default:
		return fmt.Errorf("unknown conflict policy %q (want reject, keep, replace or prompt)", c.ConflictPolicy)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Input() string {
	return c.expand(c.InputRoot)
}

func (c *Config) Archive() string {
	return c.expand(c.ArchiveRoot)
}

func (c *Config) Database() string {
	if c.DBPath == "" {
		return filepath.Join(c.Archive(), "backup.db")
	}
	return c.expand(c.DBPath)
}

func (c *Config) Sidecar() string {
	if c.SidecarPath == "" {
		return filepath.Join(c.Input(), "info.json")
	}
	return c.expand(c.SidecarPath)
}

func (c *Config) Metrics() string {
	return c.expand(c.MetricsFile)
}

// Location returns the zone transcript timestamps are read in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) expand(path string) string {
	if c.home == "" {
		c.home, _ = os.UserHomeDir()
	}
	return expandHome(path, c.home)
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
