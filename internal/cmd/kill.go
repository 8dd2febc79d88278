package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hoppxi/backlightd/internal/manager"
)

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Stop the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		response, err := manager.Manage.SendIPCCommand("STOP")
		if err != nil {
			return fmt.Errorf("%w (is the daemon running?)", err)
		}

		fmt.Printf("Server response: %s\n", response)

		if strings.Contains(response, "OK") {
			fmt.Println("backlightd successfully shut down.")
		}
		return nil
	},
}
