// Package config resolves where the chat database lives and how
// the server listens. Layering: defaults < .env file < process
// environment < explicitly-set flags.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is the dotenv file read from and written to
// the working directory.
const DefaultEnvFile = ".env"

// defaultSQLiteFile is probed when no DATABASE_URL is
// configured; if present the server uses it, otherwise it
// starts in setup mode.
const defaultSQLiteFile = "webui.db"

// Config holds all application configuration.
type Config struct {
	Host         string
	Port         int
	DatabaseURL  string
	EnvPath      string
	WriteTimeout time.Duration

	// SetupRequired is set when no database is configured and
	// no default SQLite file exists. The server then exposes
	// only the setup endpoints.
	SetupRequired bool
}

// Default returns a Config with default values.
func Default() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         3001,
		EnvPath:      DefaultEnvFile,
		WriteTimeout: 30 * time.Second,
	}
}

// Load builds a Config from defaults, the .env file at envPath,
// and the environment. Missing .env is not an error.
func Load(envPath string) (Config, error) {
	cfg := Default()
	if envPath != "" {
		cfg.EnvPath = envPath
	}

	if err := godotenv.Load(cfg.EnvPath); err != nil &&
		!os.IsNotExist(err) {
		return cfg, fmt.Errorf("loading %s: %w", cfg.EnvPath, err)
	}

	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = p
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		path, err := filepath.Abs(defaultSQLiteFile)
		if err != nil {
			return cfg, fmt.Errorf("resolving default db path: %w", err)
		}
		if _, err := os.Stat(path); err == nil {
			cfg.DatabaseURL = SQLiteURL(path)
		} else {
			cfg.SetupRequired = true
		}
	}
	return cfg, nil
}

// SQLiteURL renders a filesystem path as a sqlite DSN. Absolute
// paths produce the four-slash form (sqlite:////abs/webui.db).
func SQLiteURL(path string) string {
	return "sqlite:///" + path
}

// ExpandHome replaces a leading ~ with the user's home
// directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// ResolveSQLitePath expands and verifies a user-supplied SQLite
// file path.
func ResolveSQLitePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path is required")
	}
	expanded := ExpandHome(path)
	if _, err := os.Stat(expanded); err != nil {
		return "", fmt.Errorf("file not found: %s", expanded)
	}
	return expanded, nil
}

// BuildPostgresURL assembles a postgres DSN with escaped
// credentials.
func BuildPostgresURL(
	host string, port int, database, username, password string,
) string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(username, password),
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + database,
	}
	return u.String()
}

// SaveDatabaseURL persists the database URL to the .env file,
// preserving any other keys already there.
func (c *Config) SaveDatabaseURL(dbURL string) error {
	existing, err := godotenv.Read(c.EnvPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading %s: %w", c.EnvPath, err)
		}
		existing = map[string]string{}
	}
	existing["DATABASE_URL"] = dbURL
	if err := godotenv.Write(existing, c.EnvPath); err != nil {
		return fmt.Errorf("writing %s: %w", c.EnvPath, err)
	}
	c.DatabaseURL = dbURL
	return nil
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to ApplyFlags.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 3001, "Port to listen on")
	fs.String("env", DefaultEnvFile, "Path to the dotenv config file")
}

// ApplyFlags copies explicitly-set flags from fs into cfg.
func ApplyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		case "env":
			cfg.EnvPath = f.Value.String()
		}
	})
}
