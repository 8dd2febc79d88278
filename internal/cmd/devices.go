package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hoppxi/backlightd/internal/manager"
	"github.com/hoppxi/backlightd/pkg/displayinfo"
)

var devicesJSON bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List backlight devices and their brightness",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := manager.Config.Load(configPath)
		if err != nil {
			return err
		}
		if devicesJSON {
			data, err := displayinfo.ListJSON(settings.ClassDir)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		infos, err := displayinfo.List(settings.ClassDir)
		if err != nil {
			return err
		}
		for _, info := range infos {
			role := ""
			switch {
			case strings.Contains(info.Name, settings.OutputDevice):
				role = "(output)"
			case strings.Contains(info.Name, settings.SourceDevice):
				role = "(source)"
			}
			fmt.Printf("%-24s %5d / %-5d %3d%% %s\n", info.Name, info.Brightness, info.Max, info.Level, role)
		}
		return nil
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "print devices as JSON")
}
