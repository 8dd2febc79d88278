package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hoppxi/backlightd/internal/manager"
	"github.com/hoppxi/backlightd/internal/sysfs"
	"github.com/hoppxi/backlightd/pkg/curve"
)

// configFile is the on-disk layout. Durations are written as strings so the
// file stays readable.
type configFile struct {
	ClassDir      string `yaml:"class_dir"`
	OutputDevice  string `yaml:"output_device"`
	SourceDevice  string `yaml:"source_device"`
	TickInterval  string `yaml:"tick_interval"`
	Curve         string `yaml:"curve"`
	LidSource     string `yaml:"lid_source"`
	InputDevices  string `yaml:"input_devices"`
	LogLevel      string `yaml:"log_level"`
	NotifyOnFatal bool   `yaml:"notify_on_fatal"`
}

func toConfigFile(s manager.Settings) configFile {
	return configFile{
		ClassDir:      s.ClassDir,
		OutputDevice:  s.OutputDevice,
		SourceDevice:  s.SourceDevice,
		TickInterval:  s.TickInterval.String(),
		Curve:         s.Curve,
		LidSource:     s.LidSource,
		InputDevices:  s.InputDevices,
		LogLevel:      s.LogLevel,
		NotifyOnFatal: s.NotifyOnFatal,
	}
}

var generateDefaults bool

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Write a config file, asking for the devices to use",
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		if _, err := os.Stat(configPath); err == nil {
			if !confirm(reader, fmt.Sprintf("%s already exists. Overwrite?", configPath)) {
				return nil
			}
		}

		s := manager.Defaults()
		if !generateDefaults {
			s = promptSettings(reader, s)
		}
		if err := s.Validate(); err != nil {
			return err
		}

		if err := writeConfig(configPath, s); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", configPath)
		return nil
	},
}

func init() {
	generateConfigCmd.Flags().BoolVarP(&generateDefaults, "yes", "y", false, "write the defaults without prompting")
}

func promptSettings(r *bufio.Reader, s manager.Settings) manager.Settings {
	if names, err := sysfs.ListDevices(s.ClassDir); err == nil && len(names) > 0 {
		fmt.Printf("Backlight devices: %s\n", strings.Join(names, ", "))
	}
	s.OutputDevice = prompt(r, "Output device (written)", s.OutputDevice)
	s.SourceDevice = prompt(r, "Source device (read)", s.SourceDevice)
	s.LidSource = prompt(r, "Lid source (input, upower, none)", s.LidSource)
	s.Curve = prompt(r, "Brightness curve (empty for the built-in table, e.g. "+curve.Default+")", s.Curve)
	return s
}

func writeConfig(path string, s manager.Settings) error {
	d, err := yaml.Marshal(toConfigFile(s))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, d, 0o644)
}

func prompt(r *bufio.Reader, label, defaultValue string) string {
	fmt.Printf("%s [%s]: ", label, defaultValue)
	input, _ := r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func confirm(r *bufio.Reader, message string) bool {
	fmt.Printf("%s (y/N): ", message)
	input, _ := r.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}
