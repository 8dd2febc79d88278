package manager

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c := &ConfigManager{}
	got, err := c.Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `output_device: intel_backlight
source_device: acpi_video0
tick_interval: 5s
curve: "x * out_max / in_max"
lid_source: upower
notify_on_fatal: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c := &ConfigManager{}
	got, err := c.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	want := Defaults()
	want.OutputDevice = "intel_backlight"
	want.SourceDevice = "acpi_video0"
	want.TickInterval = 5 * time.Second
	want.Curve = "x * out_max / in_max"
	want.LidSource = LidFromUPower
	want.NotifyOnFatal = true
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad lid source", content: "lid_source: acpi\n"},
		{name: "zero interval", content: "tick_interval: 0s\n"},
		{name: "bad duration", content: "tick_interval: soon\n"},
		{name: "empty device", content: "output_device: \"\"\n"},
		{name: "bad yaml", content: "output_device: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			c := &ConfigManager{}
			if _, err := c.Load(path); err == nil {
				t.Fatalf("expected error for %q", tt.content)
			}
		})
	}
}
