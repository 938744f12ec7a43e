package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// DefaultSettingsPath is where LoadFromFile looks when no path is given.
const DefaultSettingsPath = "~/.photo-uploader/settings.toml"

type Settings struct {
	Paths  PathsConfig  `mapstructure:"paths" validate:"required"`
	Remote RemoteConfig `mapstructure:"remote" validate:"required"`
	Scan   ScanConfig   `mapstructure:"scan" validate:"required"`
	Log    LogConfig    `mapstructure:"log" validate:"required"`
}

type PathsConfig struct {
	StateDir   string `mapstructure:"state_dir" validate:"required"`
	ConfigFile string `mapstructure:"config_file" validate:"required"`
	CacheFile  string `mapstructure:"cache_file" validate:"required"`
}

type RemoteConfig struct {
	Binary        string   `mapstructure:"binary" validate:"required"`
	Name          string   `mapstructure:"name" validate:"required,excludes=:"`
	ExtraFlags    []string `mapstructure:"extra_flags"`
	AppendOnError bool     `mapstructure:"append_on_error"`
}

type ScanConfig struct {
	IncludeHidden bool   `mapstructure:"include_hidden"`
	DateSource    string `mapstructure:"date_source" validate:"required,oneof=birth mtime"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// LoadFromFile reads settings from a TOML file. Unlike a daemon config the
// file is optional: a missing file yields the defaults plus any
// PHOTOBACKUP_* environment overrides.
func LoadFromFile(filename string) (*Settings, error) {
	v := viper.New()

	setDefaults(v)

	if filename == "" {
		filename = DefaultSettingsPath
	}
	expanded, err := homedir.Expand(filename)
	if err != nil {
		return nil, fmt.Errorf("expand settings path: %w", err)
	}

	v.SetConfigFile(expanded)
	v.SetConfigType("toml")

	v.SetEnvPrefix("PHOTOBACKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateSettings(&settings); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := settings.resolvePaths(); err != nil {
		return nil, err
	}

	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.state_dir", "~/.photo-uploader")
	v.SetDefault("paths.config_file", "config.json")
	v.SetDefault("paths.cache_file", "cache.json")

	v.SetDefault("remote.binary", "rclone")
	v.SetDefault("remote.name", "gdrive")
	v.SetDefault("remote.extra_flags", []string{})
	v.SetDefault("remote.append_on_error", true)

	v.SetDefault("scan.include_hidden", false)
	v.SetDefault("scan.date_source", "birth")

	v.SetDefault("log.level", "info")
}

func validateSettings(settings *Settings) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(settings)
}

// resolvePaths expands ~ and anchors relative file names under the state dir.
func (s *Settings) resolvePaths() error {
	stateDir, err := homedir.Expand(s.Paths.StateDir)
	if err != nil {
		return fmt.Errorf("expand state dir: %w", err)
	}
	s.Paths.StateDir = stateDir

	for _, p := range []*string{&s.Paths.ConfigFile, &s.Paths.CacheFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Join(stateDir, expanded)
		}
		*p = expanded
	}
	return nil
}
