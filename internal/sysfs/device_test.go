package sysfs_test

import (
	"errors"
	"testing"

	"github.com/hoppxi/backlightd/internal/sysfs"
	"github.com/hoppxi/backlightd/internal/sysfs/sysfstest"
)

func withFake(t *testing.T) *sysfstest.FakeFS {
	t.Helper()
	old := sysfs.FS
	fake := sysfstest.New()
	sysfs.FS = fake
	t.Cleanup(func() { sysfs.FS = old })
	return fake
}

func TestFindDevice(t *testing.T) {
	fake := withFake(t)
	fake.Set("/sys/class/backlight/228600000.display-pipe/brightness", "50\n")
	fake.Set("/sys/class/backlight/apple-panel-bl/brightness", "300\n")

	tests := []struct {
		pattern string
		want    string
		wantErr error
	}{
		{pattern: "display-pipe", want: "/sys/class/backlight/228600000.display-pipe"},
		{pattern: "apple-panel-bl", want: "/sys/class/backlight/apple-panel-bl"},
		{pattern: "intel_backlight", wantErr: sysfs.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := sysfs.FindDevice(sysfs.ClassBacklight, tt.pattern)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindDevice error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q got %q", tt.want, got)
			}
		})
	}
}

func TestFindDeviceMissingClass(t *testing.T) {
	withFake(t)
	if _, err := sysfs.FindDevice("/sys/class/backlight", "display-pipe"); err == nil {
		t.Fatal("expected error for missing class directory")
	}
}

func TestReadAttr(t *testing.T) {
	fake := withFake(t)
	dir := "/sys/class/backlight/apple-panel-bl"

	tests := []struct {
		name    string
		content string
		want    uint32
		wantErr bool
	}{
		{name: "trailing newline", content: "300\n", want: 300},
		{name: "surrounding space", content: "  7 \n", want: 7},
		{name: "zero", content: "0", want: 0},
		{name: "negative", content: "-1\n", wantErr: true},
		{name: "garbage", content: "bright\n", wantErr: true},
		{name: "empty", content: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake.Set(dir+"/brightness", tt.content)
			got, err := sysfs.ReadAttr(dir, "brightness")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %d", tt.content, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadAttr error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d got %d", tt.want, got)
			}
		})
	}

	if _, err := sysfs.ReadAttr(dir, "max_brightness"); err == nil {
		t.Fatal("expected error for missing attribute")
	}
}

func TestAttrWriteUint(t *testing.T) {
	fake := withFake(t)
	dir := "/sys/class/backlight/display-pipe"
	fake.Set(dir+"/brightness", "50\n")

	attr, err := sysfs.OpenAttr(dir, "brightness")
	if err != nil {
		t.Fatalf("OpenAttr error: %v", err)
	}
	defer attr.Close()

	if err := attr.WriteUint(0); err != nil {
		t.Fatalf("WriteUint error: %v", err)
	}
	if err := attr.WriteUint(255); err != nil {
		t.Fatalf("WriteUint error: %v", err)
	}

	writes := fake.Writes(attr.Path())
	if len(writes) != 2 || writes[0] != "0\n" || writes[1] != "255\n" {
		t.Fatalf("unexpected writes: %q", writes)
	}
}

func TestOpenAttrMissing(t *testing.T) {
	withFake(t)
	if _, err := sysfs.OpenAttr("/sys/class/backlight/none", "brightness"); err == nil {
		t.Fatal("expected error opening missing attribute")
	}
}
