package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoppxi/backlightd/internal/manager"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Stop the running daemon and start a new one in the foreground",
	Long:  "reload stops the running daemon and starts again in this process, rediscovering devices and rereading the config",
	RunE: func(cmd *cobra.Command, args []string) error {
		response, err := manager.Manage.SendIPCCommand("STOP")
		if err != nil {
			return fmt.Errorf("%w (is the daemon running?)", err)
		}
		fmt.Printf("Server response: %s\n", response)

		// wait until the old daemon stops answering
		for i := 0; i < 20; i++ {
			conn, err := manager.Manage.ConnectIPC()
			if err != nil {
				break
			}
			conn.Close()
			time.Sleep(100 * time.Millisecond)
		}

		return startCmd.RunE(cmd, args)
	},
}
