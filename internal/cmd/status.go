package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoppxi/backlightd/internal/manager"
	"github.com/hoppxi/backlightd/internal/watchers"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's current brightness, lid state and idle time",
	RunE: func(cmd *cobra.Command, args []string) error {
		response, err := manager.Manage.SendIPCCommand("STATUS")
		if err != nil {
			return fmt.Errorf("%w (hint: run `backlightd start` first)", err)
		}
		if strings.HasPrefix(response, "ERR") {
			return fmt.Errorf("daemon: %s", response)
		}
		if statusJSON {
			fmt.Println(response)
			return nil
		}

		var st watchers.Status
		if err := json.Unmarshal([]byte(response), &st); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		fmt.Printf("session:    %s\n", st.Session)
		fmt.Printf("brightness: %d\n", st.Brightness)
		fmt.Printf("lid:        %s\n", st.Lid)
		fmt.Printf("idle:       %s\n", (time.Duration(st.IdleMs) * time.Millisecond).String())
		fmt.Printf("output:     %s\n", st.Output)
		fmt.Printf("source:     %s\n", st.Source)
		fmt.Printf("updates:    %d\n", st.Updates)
		if st.LastEvent != "" {
			fmt.Printf("last event: %s\n", st.LastEvent)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw JSON snapshot")
}
