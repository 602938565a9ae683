// Package config loads gdbmi settings.
//
// Settings come, highest priority first, from command line flags bound to
// the viper instance, GDBMI_* environment variables (GDBMI_GDB_PATH for
// gdb.path), the TOML config file and the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName = "gdbmi"
	configType = "toml"
	envPrefix  = "GDBMI"
	fileMode   = 0o644
	dirMode    = 0o755
)

// Keys.
const (
	KeyGDBPath           = "gdb.path"
	KeyGDBArgs           = "gdb.args"
	KeyGDBVersion        = "gdb.version"
	KeyCommandTimeout    = "engine.command_timeout"
	KeyLaunchMode        = "session.launch_mode"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyTelemetryEndpoint = "telemetry.endpoint"
	KeyTelemetryService  = "telemetry.service"
)

// Config is the complete configuration.
type Config struct {
	GDB       GDB       `mapstructure:"gdb"`
	Engine    Engine    `mapstructure:"engine"`
	Session   Session   `mapstructure:"session"`
	Log       Log       `mapstructure:"log"`
	Telemetry Telemetry `mapstructure:"telemetry"`
}

// GDB locates the backend.
type GDB struct {
	Path string   `mapstructure:"path"`
	Args []string `mapstructure:"args"`

	// Version selects the stop reason vocabulary. Empty means newest.
	Version string `mapstructure:"version"`
}

// Engine configures the command engine.
type Engine struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// Session configures new sessions.
type Session struct {
	// LaunchMode is "launch" or "attach".
	LaunchMode string `mapstructure:"launch_mode"`
}

// Log configures logging.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Telemetry configures trace export. An empty endpoint disables it.
type Telemetry struct {
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

var defaults = map[string]any{
	KeyGDBPath:           "gdb",
	KeyGDBArgs:           []string{},
	KeyGDBVersion:        "",
	KeyCommandTimeout:    30 * time.Second,
	KeyLaunchMode:        "launch",
	KeyLogLevel:          "warn",
	KeyLogFormat:         "console",
	KeyTelemetryEndpoint: "",
	KeyTelemetryService:  "gdbmi",
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Default returns the built-in configuration.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads the configuration into v, which may carry bound flags, and
// decodes it. v may be nil. With an empty path the file gdbmi.toml is
// looked up in the working directory and the user config directory, and
// a missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	prepare(v)

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return Config{}, &ParseError{Path: v.ConfigFileUsed(), Message: err.Error(), Err: err}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that have a fixed set of choices.
func (c Config) Validate() error {
	var errs []error
	if c.GDB.Path == "" {
		errs = append(errs, fmt.Errorf("%w: %s is empty", ErrValidationFailed, KeyGDBPath))
	}
	if c.Engine.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: %s is negative", ErrValidationFailed, KeyCommandTimeout))
	}
	if !oneOf(c.Session.LaunchMode, "launch", "attach") {
		errs = append(errs, fmt.Errorf("%w: %s must be launch or attach, got %q", ErrValidationFailed, KeyLaunchMode, c.Session.LaunchMode))
	}
	if !oneOf(strings.ToLower(c.Log.Level), "debug", "info", "warn", "warning", "error") {
		errs = append(errs, fmt.Errorf("%w: %s %q", ErrValidationFailed, KeyLogLevel, c.Log.Level))
	}
	if !oneOf(c.Log.Format, "console", "json") {
		errs = append(errs, fmt.Errorf("%w: %s %q", ErrValidationFailed, KeyLogFormat, c.Log.Format))
	}
	return errors.Join(errs...)
}

// WriteDefault writes the default configuration as TOML to path. An
// existing file is kept unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Marshal encodes cfg as TOML. Durations are written as strings like "30s".
func Marshal(cfg Config) ([]byte, error) {
	doc := tomlDoc{
		GDB: tomlGDB{Path: cfg.GDB.Path, Args: cfg.GDB.Args, Version: cfg.GDB.Version},
		Engine: tomlEngine{
			CommandTimeout: cfg.Engine.CommandTimeout.String(),
		},
		Session:   tomlSession{LaunchMode: cfg.Session.LaunchMode},
		Log:       tomlLog{Level: cfg.Log.Level, Format: cfg.Log.Format},
		Telemetry: tomlTelemetry{Endpoint: cfg.Telemetry.Endpoint, Service: cfg.Telemetry.Service},
	}
	if doc.GDB.Args == nil {
		doc.GDB.Args = []string{}
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

type tomlDoc struct {
	GDB       tomlGDB       `toml:"gdb"`
	Engine    tomlEngine    `toml:"engine"`
	Session   tomlSession   `toml:"session"`
	Log       tomlLog       `toml:"log"`
	Telemetry tomlTelemetry `toml:"telemetry"`
}

type tomlGDB struct {
	Path    string   `toml:"path"`
	Args    []string `toml:"args"`
	Version string   `toml:"version"`
}

type tomlEngine struct {
	CommandTimeout string `toml:"command_timeout"`
}

type tomlSession struct {
	LaunchMode string `toml:"launch_mode"`
}

type tomlLog struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type tomlTelemetry struct {
	Endpoint string `toml:"endpoint"`
	Service  string `toml:"service"`
}

func prepare(v *viper.Viper) {
	SetDefaults(v)
	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func oneOf(s string, choices ...string) bool {
	for _, c := range choices {
		if s == c {
			return true
		}
	}
	return false
}
