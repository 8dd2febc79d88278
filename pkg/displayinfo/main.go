package displayinfo

import (
	"encoding/json"
	"errors"
	"path/filepath"

	"github.com/hoppxi/backlightd/internal/sysfs"
)

type DisplayInfo struct {
	Name       string `json:"name"`
	Brightness uint32 `json:"brightness"`
	Max        uint32 `json:"max_brightness"`
	Level      int    `json:"level"`
}

// GetDisplayInfo reads the brightness of one backlight device directory.
func GetDisplayInfo(device string) (*DisplayInfo, error) {
	current, err := sysfs.ReadAttr(device, "brightness")
	if err != nil {
		return nil, err
	}

	maxVal, err := sysfs.ReadAttr(device, "max_brightness")
	if err != nil {
		return nil, err
	}

	if maxVal == 0 {
		return nil, errors.New("invalid max_brightness value")
	}

	percent := int(float64(current) / float64(maxVal) * 100.0)
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	return &DisplayInfo{
		Name:       filepath.Base(device),
		Brightness: current,
		Max:        maxVal,
		Level:      percent,
	}, nil
}

// List reads every device under a backlight class directory. Devices that
// cannot be read are skipped.
func List(classDir string) ([]*DisplayInfo, error) {
	names, err := sysfs.ListDevices(classDir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.New("no backlight devices found")
	}

	var infos []*DisplayInfo
	for _, name := range names {
		info, err := GetDisplayInfo(filepath.Join(classDir, name))
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func ListJSON(classDir string) ([]byte, error) {
	infos, err := List(classDir)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(infos, "", "  ")
}
