package cmd

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hoppxi/backlightd/internal/manager"
)

var Version = "0.1.0"

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:     "backlightd",
	Version: Version,
	Short:   "Idle dimming for laptop backlights",
	Long:    "backlightd mirrors the panel brightness onto the display and dims or blanks it when the user is idle or the lid is closed",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		setLogLevel("info")

		if configPath == "" {
			p, err := manager.DefaultConfigPath()
			if err != nil {
				log.Fatal().Err(err).Msg("cannot locate config directory")
			}
			configPath = p
		}
	},
}

// setLogLevel applies a level name, keeping debug when --debug was given.
func setLogLevel(level string) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/backlightd/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(generateConfigCmd)
}
