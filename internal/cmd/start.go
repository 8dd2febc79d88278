package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hoppxi/backlightd/internal/backlight"
	"github.com/hoppxi/backlightd/internal/manager"
	"github.com/hoppxi/backlightd/internal/subscribe"
	"github.com/hoppxi/backlightd/internal/watchers"
	"github.com/hoppxi/backlightd/pkg/curve"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the brightness daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		if conn, err := manager.Manage.ConnectIPC(); err == nil {
			conn.Close()
			return errors.New("daemon already running, use `backlightd reload` to restart it")
		}

		settings, err := manager.Config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("config", configPath).Msg("cannot load config")
		}
		setLogLevel(settings.LogLevel)

		session := uuid.New().String()
		logger := log.With().Str("session", session).Logger()

		opts := backlight.Options{
			ClassDir:     settings.ClassDir,
			OutputDevice: settings.OutputDevice,
			SourceDevice: settings.SourceDevice,
			Interval:     settings.TickInterval,
			Logger:       &logger,
		}
		if settings.Curve != "" {
			c, err := curve.Compile(settings.Curve)
			if err != nil {
				fatal(settings, err, "invalid brightness curve")
			}
			opts.Builder = c.Builder()
		}

		ctrl, err := backlight.New(opts)
		if err != nil {
			fatal(settings, err, "cannot initialise backlight controller")
		}

		stop := manager.Manage.Stopping()
		events, changes, err := subscribeSources(stop, settings, ctrl.SourcePath())
		if err != nil {
			ctrl.Close()
			fatal(settings, err, "cannot subscribe to event sources")
		}

		w := watchers.NewBacklightWatcher(ctrl, events, changes, settings.TickInterval, session)
		manager.Manage.Go(w.Run)
		manager.Manage.SetStatus(func() any { return w.Status() })

		if err := manager.Manage.Listen(); err != nil {
			logger.Warn().Err(err).Msg("IPC disabled")
		} else {
			go manager.Manage.Serve()
		}

		manager.Config.Watch(func(s manager.Settings) {
			setLogLevel(s.LogLevel)
			logger.Info().Str("log_level", s.LogLevel).Msg("config reloaded, restart to apply device or timing changes")
		}, func(err error) {
			logger.Warn().Err(err).Msg("ignoring invalid config change")
		})

		logger.Info().
			Str("output", ctrl.OutputPath()).
			Str("source", ctrl.SourcePath()).
			Str("lid_source", settings.LidSource).
			Msg("backlightd started")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		err = manager.Manage.Wait(sigChan)
		ctrl.Close()
		if err != nil {
			fatal(settings, err, "backlight watcher failed")
		}

		logger.Info().Msg("backlightd stopped")
		return nil
	},
}

// subscribeSources starts the event sources selected by settings. The uevent
// source is optional since ticks also pick up source changes.
func subscribeSources(stop <-chan struct{}, s manager.Settings, sourcePath string) (<-chan backlight.Event, <-chan struct{}, error) {
	input, err := subscribe.InputEvents(stop, s.InputDevices, s.LidSource == manager.LidFromInput)
	if err != nil {
		return nil, nil, fmt.Errorf("input events: %w", err)
	}
	sources := []<-chan backlight.Event{input}

	if s.LidSource == manager.LidFromUPower {
		lid, err := subscribe.LidEvents(stop)
		if err != nil {
			return nil, nil, fmt.Errorf("lid events: %w", err)
		}
		sources = append(sources, lid)
	}

	changes, err := subscribe.BacklightChanges(stop, filepath.Base(sourcePath))
	if err != nil {
		log.Warn().Err(err).Msg("backlight uevents unavailable, relying on ticks")
	}

	return subscribe.Merge(stop, sources...), changes, nil
}

func fatal(s manager.Settings, err error, msg string) {
	if s.NotifyOnFatal {
		if nerr := zenity.Notify(fmt.Sprintf("%s: %v", msg, err), zenity.Title("backlightd"), zenity.ErrorIcon); nerr != nil {
			log.Debug().Err(nerr).Msg("desktop notification failed")
		}
	}
	log.Fatal().Err(err).Msg(msg)
}
