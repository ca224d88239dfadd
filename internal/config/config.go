// Package config loads the client configuration: a YAML file under the user config directory,
// optional .env files, and environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvBackendURL   = "QUINTON_BACKEND_URL"
	EnvAPIKey       = "QUINTON_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvPort         = "QUINTON_PORT"
	EnvLogLevel     = "QUINTON_LOG_LEVEL"
)

const (
	defaultPort       = "8080"
	defaultBackendURL = "http://localhost:8000"
)

// Config is the client configuration.
type Config struct {
	Port       string `yaml:"port"`
	BackendURL string `yaml:"backendURL"`
	APIKey     string `yaml:"apiKey"`

	// LogLevel is a slog level name; empty means the front end picks its own default.
	LogLevel string `yaml:"logLevel"`
	// LogFile, when set, receives a copy of the logs and is rotated at 10 MB.
	LogFile string `yaml:"logFile"`

	// Models and Personalities replace the built-in tables when not empty. The first row of each
	// table is the default selection.
	Models        []models.Option `yaml:"models"`
	Personalities []models.Option `yaml:"personalities"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Port:       defaultPort,
		BackendURL: defaultBackendURL,
	}
}

// Path returns the default location of the config file, $UserConfigDir/quinton/config.yaml.
func Path() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, "quinton", "config.yaml"), nil
}

// Load reads the config file at path and applies the environment overrides. A missing file is not
// an error: the defaults are used instead.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	err := yaml.NewDecoder(r).Decode(c)
	// An empty file decodes to io.EOF.
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error decoding config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		c.Port = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	switch {
	case os.Getenv(EnvAPIKey) != "":
		c.APIKey = os.Getenv(EnvAPIKey)
	case c.APIKey == "" && os.Getenv(EnvOpenAIAPIKey) != "":
		c.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
}

// Validate checks the backend URL, the port and the log level. Load validates what it returns;
// callers that override fields afterwards validate again.
func (c Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backendURL is required")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backendURL %q: %w", c.BackendURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backendURL %q: scheme must be http or https", c.BackendURL)
	}
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level is info.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid logLevel %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Catalog builds the model and personality catalog, falling back to the built-in tables for the
// ones the file leaves empty.
func (c Config) Catalog() (models.Catalog, error) {
	ms := c.Models
	if len(ms) == 0 {
		ms = models.DefaultModels
	}
	ps := c.Personalities
	if len(ps) == 0 {
		ps = models.DefaultPersonalities
	}

	cat, err := models.NewCatalog(ms, ps)
	if err != nil {
		return models.Catalog{}, fmt.Errorf("invalid catalog: %w", err)
	}
	return cat, nil
}

// LoadDotEnv loads the given .env files (".env" when none is given) into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}
	return nil
}
