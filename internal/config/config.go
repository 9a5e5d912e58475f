package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultBackend      = "auto"
	defaultSQLiteFile   = "herd.db"
	defaultBlobFile     = "herd.bolt"
	defaultLogLevel     = "info"
	defaultLogMaxSizeMB = 10
	defaultLogMaxFiles  = 5
	defaultServerAddr   = "127.0.0.1:8080"
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Server  ServerConfig  `toml:"server"`
}

type StorageConfig struct {
	Backend              string `toml:"backend"`
	SQLitePath           string `toml:"sqlite_path"`
	BlobPath             string `toml:"blob_path"`
	StrictVersions       bool   `toml:"strict_versions"`
	FailOnBlobWriteError bool   `toml:"fail_on_blob_write_error"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

type ServerConfig struct {
	Addr         string        `toml:"addr"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

type LoadOptions struct {
	ConfigPath string
	Env        map[string]string
	Flags      FlagOverrides
}

// FlagOverrides holds command-line values; nil fields were not set.
type FlagOverrides struct {
	Backend    *string
	SQLitePath *string
	ServerAddr *string
}

// DefaultConfig places both data files under home.
func DefaultConfig(home string) Config {
	return Config{
		Storage: StorageConfig{
			Backend:              defaultBackend,
			SQLitePath:           filepath.Join(home, defaultSQLiteFile),
			BlobPath:             filepath.Join(home, defaultBlobFile),
			StrictVersions:       true,
			FailOnBlobWriteError: false,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			File:      "",
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
		Server: ServerConfig{
			Addr:         defaultServerAddr,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
		},
	}
}

// Load resolves defaults, then the TOML file, then AGROTECH_* environment
// variables, then flags. A missing config file is not an error.
func Load(opts LoadOptions) (Config, error) {
	home, err := Home(opts.Env)
	if err != nil {
		return Config{}, fmt.Errorf("resolve agrotech home: %w", err)
	}
	cfg := DefaultConfig(home)

	configPath, err := resolveConfigPath(opts)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	if err := loadAndApplyFile(configPath, &cfg); err != nil {
		return Config{}, err
	}

	if err := applyEnvOverrides(&cfg, opts); err != nil {
		return Config{}, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type rawConfig struct {
	Storage *rawStorage `toml:"storage"`
	Logging *rawLogging `toml:"logging"`
	Server  *rawServer  `toml:"server"`
}

type rawStorage struct {
	Backend              *string `toml:"backend"`
	SQLitePath           *string `toml:"sqlite_path"`
	BlobPath             *string `toml:"blob_path"`
	StrictVersions       *bool   `toml:"strict_versions"`
	FailOnBlobWriteError *bool   `toml:"fail_on_blob_write_error"`
}

type rawLogging struct {
	Level     *string `toml:"level"`
	File      *string `toml:"file"`
	MaxSizeMB *int    `toml:"max_size_mb"`
	MaxFiles  *int    `toml:"max_files"`
}

type rawServer struct {
	Addr         *string `toml:"addr"`
	ReadTimeout  *string `toml:"read_timeout"`
	WriteTimeout *string `toml:"write_timeout"`
}

func loadAndApplyFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}
	return applyRawConfig(cfg, raw)
}

func applyRawConfig(cfg *Config, raw rawConfig) error {
	if raw.Storage != nil {
		setString(raw.Storage.Backend, &cfg.Storage.Backend)
		setString(raw.Storage.SQLitePath, &cfg.Storage.SQLitePath)
		setString(raw.Storage.BlobPath, &cfg.Storage.BlobPath)
		setBool(raw.Storage.StrictVersions, &cfg.Storage.StrictVersions)
		setBool(raw.Storage.FailOnBlobWriteError, &cfg.Storage.FailOnBlobWriteError)
	}

	if raw.Logging != nil {
		setString(raw.Logging.Level, &cfg.Logging.Level)
		setString(raw.Logging.File, &cfg.Logging.File)
		setInt(raw.Logging.MaxSizeMB, &cfg.Logging.MaxSizeMB)
		setInt(raw.Logging.MaxFiles, &cfg.Logging.MaxFiles)
	}

	if raw.Server != nil {
		setString(raw.Server.Addr, &cfg.Server.Addr)
		if err := setDuration("server.read_timeout", raw.Server.ReadTimeout, &cfg.Server.ReadTimeout); err != nil {
			return err
		}
		if err := setDuration("server.write_timeout", raw.Server.WriteTimeout, &cfg.Server.WriteTimeout); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config, opts LoadOptions) error {
	if value, ok := lookupEnv(opts.Env, "AGROTECH_BACKEND"); ok {
		cfg.Storage.Backend = value
	}
	if value, ok := lookupEnv(opts.Env, "AGROTECH_SQLITE_PATH"); ok {
		cfg.Storage.SQLitePath = value
	}
	if value, ok := lookupEnv(opts.Env, "AGROTECH_BLOB_PATH"); ok {
		cfg.Storage.BlobPath = value
	}
	if err := envBool(opts, "AGROTECH_STRICT_VERSIONS", &cfg.Storage.StrictVersions); err != nil {
		return err
	}
	if err := envBool(opts, "AGROTECH_FAIL_ON_BLOB_WRITE_ERROR", &cfg.Storage.FailOnBlobWriteError); err != nil {
		return err
	}

	if value, ok := lookupEnv(opts.Env, "AGROTECH_LOG_LEVEL"); ok {
		cfg.Logging.Level = value
	}
	if value, ok := lookupEnv(opts.Env, "AGROTECH_LOG_FILE"); ok {
		cfg.Logging.File = value
	}
	if value, ok := lookupEnv(opts.Env, "AGROTECH_LOG_MAX_SIZE_MB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse AGROTECH_LOG_MAX_SIZE_MB: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxSizeMB = parsed
	}
	if value, ok := lookupEnv(opts.Env, "AGROTECH_LOG_MAX_FILES"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse AGROTECH_LOG_MAX_FILES: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxFiles = parsed
	}

	if value, ok := lookupEnv(opts.Env, "AGROTECH_SERVER_ADDR"); ok {
		cfg.Server.Addr = value
	}
	return nil
}

func envBool(opts LoadOptions, key string, target *bool) error {
	value, ok := lookupEnv(opts.Env, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, key, err)
	}
	*target = parsed
	return nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	setString(flags.Backend, &cfg.Storage.Backend)
	setString(flags.SQLitePath, &cfg.Storage.SQLitePath)
	setString(flags.ServerAddr, &cfg.Server.Addr)
}

func validate(cfg Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", "auto", "sqlite", "blob":
	default:
		return fmt.Errorf("%w: storage.backend must be auto, sqlite or blob, got %q", ErrInvalidConfig, cfg.Storage.Backend)
	}
	if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
		return fmt.Errorf("%w: storage.sqlite_path must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Storage.BlobPath) == "" {
		return fmt.Errorf("%w: storage.blob_path must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level must be debug, info, warn or error, got %q", ErrInvalidConfig, cfg.Logging.Level)
	}
	if cfg.Logging.MaxSizeMB <= 0 || cfg.Logging.MaxFiles <= 0 {
		return fmt.Errorf("%w: logging.max_size_mb and logging.max_files must be > 0", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr must not be empty", ErrInvalidConfig)
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 {
		return fmt.Errorf("%w: server timeouts must be > 0", ErrInvalidConfig)
	}
	return nil
}

func setDuration(field string, raw *string, target *time.Duration) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, field, err)
	}
	*target = d
	return nil
}

func setString(raw *string, target *string) {
	if raw != nil {
		*target = *raw
	}
}

func setBool(raw *bool, target *bool) {
	if raw != nil {
		*target = *raw
	}
}

func setInt(raw *int, target *int) {
	if raw != nil {
		*target = *raw
	}
}

func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	if value, ok := lookupEnv(opts.Env, "AGROTECH_CONFIG_PATH"); ok {
		return value, nil
	}
	return defaultConfigPath(opts.Env)
}

func lookupEnv(env map[string]string, key string) (string, bool) {
	if env != nil {
		if value, ok := env[key]; ok {
			return value, true
		}
	}
	return os.LookupEnv(key)
}

// Home is the data directory: AGROTECH_HOME, or the platform data dir.
func Home(env map[string]string) (string, error) {
	if value, ok := lookupEnv(env, "AGROTECH_HOME"); ok && value != "" {
		return value, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "AgroTech"), nil
	}

	dataHome := filepath.Join(home, ".local", "share")
	if xdgDataHome, ok := lookupEnv(env, "XDG_DATA_HOME"); ok && xdgDataHome != "" {
		dataHome = xdgDataHome
	}
	return filepath.Join(dataHome, "agrotech"), nil
}

func defaultConfigPath(env map[string]string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "AgroTech", "config.toml"), nil
	}

	configHome := filepath.Join(home, ".config")
	if xdgConfigHome, ok := lookupEnv(env, "XDG_CONFIG_HOME"); ok && xdgConfigHome != "" {
		configHome = xdgConfigHome
	}
	return filepath.Join(configHome, "agrotech", "config.toml"), nil
}
