// Package config resolves updatesvc service options.
//
// Options come from, in increasing precedence: built-in defaults, the YAML
// options file (~/.updatesvc/config.yaml unless overridden), UPDATESVC_*
// environment variables and explicitly set command-line flags.
//
// These options configure the service itself. The user-facing update settings
// live in the watched JSON file managed by package settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appErrors "updatesvc/internal/errors"
	"updatesvc/internal/settings"
	"updatesvc/internal/update"
)

const (
	KeySettingsPath  = "settings.path"
	KeyFeedURL       = "feed.url"
	KeyFeedTimeout   = "feed.timeout"
	KeyCheckInterval = "check.interval"
	KeyCheckOnStart  = "check.on-start"
	KeyDebug         = "debug"
)

const (
	// DefaultCheckInterval is how often the service checks the feed.
	DefaultCheckInterval = time.Hour
	envPrefix            = "UPDATESVC"
)

// Options is the resolved service configuration.
type Options struct {
	SettingsPath  string
	FeedURL       string
	FeedTimeout   time.Duration
	CheckInterval time.Duration
	CheckOnStart  bool
	Debug         bool
}

type loadSettings struct {
	configPath   string
	explicitPath bool
	flags        *pflag.FlagSet
	bindings     map[string]string
}

// Option configures Load behaviour. Useful for tests to override paths.
type Option func(*loadSettings)

// WithConfigFile reads options from path instead of the default location.
// Unlike the default file, an explicit file must exist.
func WithConfigFile(path string) Option {
	return func(cfg *loadSettings) {
		if strings.TrimSpace(path) == "" {
			return
		}
		cfg.configPath = path
		cfg.explicitPath = true
	}
}

// WithFlags binds configuration keys to flags in fs. bindings maps a key
// such as KeyFeedURL to a flag name. Only flags the user set take effect.
func WithFlags(fs *pflag.FlagSet, bindings map[string]string) Option {
	return func(cfg *loadSettings) {
		cfg.flags = fs
		cfg.bindings = bindings
	}
}

// MarshalYAML renders o in the layout of the options file, so the output of
// YAML can be saved and loaded back unchanged.
func (o Options) MarshalYAML() (any, error) {
	return map[string]any{
		"settings": map[string]any{"path": o.SettingsPath},
		"feed": map[string]any{
			"url":     o.FeedURL,
			"timeout": o.FeedTimeout.String(),
		},
		"check": map[string]any{
			"interval": o.CheckInterval.String(),
			"on-start": o.CheckOnStart,
		},
		"debug": o.Debug,
	}, nil
}

// YAML returns o as an options file.
func (o Options) YAML() ([]byte, error) {
	data, err := yaml.Marshal(o)
	if err != nil {
		return nil, configError("encode options", err)
	}
	return data, nil
}

// Load resolves Options.
func Load(opts ...Option) (Options, error) {
	cfg := loadSettings{}
	for _, opt := range opts {
		opt(&cfg)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	path := strings.TrimSpace(cfg.configPath)
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return Options{}, err
		}
		path = p
	}
	if err := mergeConfigFile(v, path, cfg.explicitPath); err != nil {
		return Options{}, configError("load options file", err)
	}

	if cfg.flags != nil {
		for key, name := range cfg.bindings {
			flag := cfg.flags.Lookup(name)
			if flag == nil {
				return Options{}, configError(fmt.Sprintf("bind %s", key), fmt.Errorf("unknown flag --%s", name))
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Options{}, configError(fmt.Sprintf("bind %s", key), err)
			}
		}
	}

	return resolve(v)
}

// DefaultConfigPath returns ~/.updatesvc/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", configError("determine user home", err)
	}
	return filepath.Join(home, ".updatesvc", "config.yaml"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeySettingsPath, "")
	v.SetDefault(KeyFeedURL, update.DefaultFeedURL)
	v.SetDefault(KeyFeedTimeout, update.DefaultTimeout)
	v.SetDefault(KeyCheckInterval, DefaultCheckInterval)
	v.SetDefault(KeyCheckOnStart, true)
	v.SetDefault(KeyDebug, false)
}

func resolve(v *viper.Viper) (Options, error) {
	opts := Options{
		SettingsPath:  strings.TrimSpace(v.GetString(KeySettingsPath)),
		FeedURL:       strings.TrimSpace(v.GetString(KeyFeedURL)),
		FeedTimeout:   v.GetDuration(KeyFeedTimeout),
		CheckInterval: v.GetDuration(KeyCheckInterval),
		CheckOnStart:  v.GetBool(KeyCheckOnStart),
		Debug:         v.GetBool(KeyDebug),
	}

	if opts.SettingsPath == "" {
		path, err := settings.DefaultPath()
		if err != nil {
			return Options{}, configError("determine settings path", err)
		}
		opts.SettingsPath = path
	}
	if opts.FeedURL == "" {
		opts.FeedURL = update.DefaultFeedURL
	}
	if opts.FeedTimeout <= 0 {
		return Options{}, configError(fmt.Sprintf("%s must be positive, got %q", KeyFeedTimeout, v.GetString(KeyFeedTimeout)), nil)
	}
	if opts.CheckInterval <= 0 {
		return Options{}, configError(fmt.Sprintf("%s must be positive, got %q", KeyCheckInterval, v.GetString(KeyCheckInterval)), nil)
	}
	return opts, nil
}

func mergeConfigFile(v *viper.Viper, path string, required bool) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads the options file
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func configError(msg string, err error) error {
	return appErrors.New(appErrors.CodeConfigurationError, msg, err)
}
