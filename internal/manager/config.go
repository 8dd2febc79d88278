package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/hoppxi/backlightd/internal/backlight"
	"github.com/hoppxi/backlightd/internal/subscribe"
	"github.com/hoppxi/backlightd/internal/sysfs"
)

// Lid sources.
const (
	LidFromInput  = "input"
	LidFromUPower = "upower"
	LidNone       = "none"
)

// Settings is the daemon configuration.
type Settings struct {
	ClassDir      string        `mapstructure:"class_dir" yaml:"class_dir"`
	OutputDevice  string        `mapstructure:"output_device" yaml:"output_device"`
	SourceDevice  string        `mapstructure:"source_device" yaml:"source_device"`
	TickInterval  time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	Curve         string        `mapstructure:"curve" yaml:"curve"`
	LidSource     string        `mapstructure:"lid_source" yaml:"lid_source"`
	InputDevices  string        `mapstructure:"input_devices" yaml:"input_devices"`
	LogLevel      string        `mapstructure:"log_level" yaml:"log_level"`
	NotifyOnFatal bool          `mapstructure:"notify_on_fatal" yaml:"notify_on_fatal"`
}

// Defaults returns the settings used when no config file exists.
func Defaults() Settings {
	return Settings{
		ClassDir:     sysfs.ClassBacklight,
		OutputDevice: backlight.DefaultOutputDevice,
		SourceDevice: backlight.DefaultSourceDevice,
		TickInterval: backlight.DefaultInterval,
		LidSource:    LidFromInput,
		InputDevices: subscribe.DefaultInputDevices,
		LogLevel:     "info",
	}
}

// Validate checks values viper cannot type-check.
func (s Settings) Validate() error {
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", s.TickInterval)
	}
	switch s.LidSource {
	case LidFromInput, LidFromUPower, LidNone:
	default:
		return fmt.Errorf("lid_source must be %q, %q or %q, got %q", LidFromInput, LidFromUPower, LidNone, s.LidSource)
	}
	if s.OutputDevice == "" || s.SourceDevice == "" {
		return errors.New("output_device and source_device must be set")
	}
	return nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/backlightd/config.yaml.
func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "backlightd", "config.yaml"), nil
}

type ConfigManager struct {
	once     sync.Once
	v        *viper.Viper
	settings Settings
	err      error
}

var Config = &ConfigManager{}

// Load reads the config file at path once. A missing file yields defaults.
func (c *ConfigManager) Load(path string) (Settings, error) {
	c.once.Do(func() {
		c.v = newViper(path)
		c.settings, c.err = read(c.v)
	})
	return c.settings, c.err
}

// Watch calls onChange with freshly parsed settings whenever the file changes.
// Invalid edits are reported through onError and otherwise ignored.
func (c *ConfigManager) Watch(onChange func(Settings), onError func(error)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	if _, err := os.Stat(c.v.ConfigFileUsed()); err != nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		s, err := read(c.v)
		if err != nil {
			onError(err)
			return
		}
		onChange(s)
	})
	c.v.WatchConfig()
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("class_dir", d.ClassDir)
	v.SetDefault("output_device", d.OutputDevice)
	v.SetDefault("source_device", d.SourceDevice)
	v.SetDefault("tick_interval", d.TickInterval)
	v.SetDefault("curve", d.Curve)
	v.SetDefault("lid_source", d.LidSource)
	v.SetDefault("input_devices", d.InputDevices)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("notify_on_fatal", d.NotifyOnFatal)

	v.SetEnvPrefix("BACKLIGHTD")
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

func read(v *viper.Viper) (Settings, error) {
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to read config: %w", err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid config %s: %w", v.ConfigFileUsed(), err)
	}
	return s, nil
}
