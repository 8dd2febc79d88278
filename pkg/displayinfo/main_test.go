package displayinfo

import (
	"encoding/json"
	"testing"

	"github.com/hoppxi/backlightd/internal/sysfs"
	"github.com/hoppxi/backlightd/internal/sysfs/sysfstest"
)

func TestList(t *testing.T) {
	old := sysfs.FS
	fake := sysfstest.New()
	sysfs.FS = fake
	defer func() { sysfs.FS = old }()

	fake.Set("/sys/class/backlight/apple-panel-bl/brightness", "255\n")
	fake.Set("/sys/class/backlight/apple-panel-bl/max_brightness", "510\n")
	fake.Set("/sys/class/backlight/display-pipe/brightness", "0\n")
	fake.Set("/sys/class/backlight/display-pipe/max_brightness", "255\n")
	fake.Set("/sys/class/backlight/broken/max_brightness", "0\n")

	data, err := ListJSON("/sys/class/backlight")
	if err != nil {
		t.Fatalf("ListJSON error: %v", err)
	}
	var infos []DisplayInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 readable devices, got %+v", infos)
	}
	if infos[0].Name != "apple-panel-bl" || infos[0].Level != 50 {
		t.Fatalf("unexpected panel info %+v", infos[0])
	}
	if infos[1].Name != "display-pipe" || infos[1].Brightness != 0 || infos[1].Max != 255 {
		t.Fatalf("unexpected pipe info %+v", infos[1])
	}
}

func TestGetDisplayInfoZeroMax(t *testing.T) {
	old := sysfs.FS
	fake := sysfstest.New()
	sysfs.FS = fake
	defer func() { sysfs.FS = old }()

	fake.Set("/sys/class/backlight/x/brightness", "3\n")
	fake.Set("/sys/class/backlight/x/max_brightness", "0\n")
	if _, err := GetDisplayInfo("/sys/class/backlight/x"); err == nil {
		t.Fatal("expected error for zero max_brightness")
	}
}
